package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AbsoluteStockTarget is the quantity a product should have in a scope
type AbsoluteStockTarget struct {
	ProductID uuid.UUID
	Quantity  int64
	Scope     stock.AbsoluteStockScope
}

// AbsoluteStockResult is the outcome of applying absolute targets
type AbsoluteStockResult struct {
	// Movements holds the correction batch, empty when every target already matched
	Movements []stock.StockMovement
	Replayed  bool
}

// AbsoluteStockService turns absolute quantities into correction movements
type AbsoluteStockService struct {
	stockRepo          stock.StockRepository
	directory          stock.LocationDirectory
	mover              StockMover
	defaultWarehouseID uuid.UUID
	logger             *zap.Logger
	now                func() time.Time
}

// NewAbsoluteStockService creates a new AbsoluteStockService
func NewAbsoluteStockService(stockRepo stock.StockRepository, directory stock.LocationDirectory, mover StockMover, logger *zap.Logger) *AbsoluteStockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AbsoluteStockService{
		stockRepo: stockRepo,
		directory: directory,
		mover:     mover,
		logger:    logger,
		now:       time.Now,
	}
}

// SetDefaultWarehouse sets the warehouse receiving global corrections when the
// target does not name one
func (s *AbsoluteStockService) SetDefaultWarehouse(warehouseID uuid.UUID) {
	s.defaultWarehouseID = warehouseID
}

// Apply computes the delta of every target against the current aggregate and
// books all non-zero corrections as one batch
func (s *AbsoluteStockService) Apply(ctx context.Context, tenantID uuid.UUID, targets []AbsoluteStockTarget, userID *uuid.UUID) (*AbsoluteStockResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no absolute stock targets", shared.ErrInvalidInput)
	}

	var locations []stock.LocationReference
	for i := range targets {
		t := &targets[i]
		if t.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: target %d has no product", shared.ErrInvalidInput, i)
		}
		if t.Quantity < 0 {
			return nil, fmt.Errorf("%w: target %d has a negative quantity", shared.ErrInvalidInput, i)
		}
		if t.Scope.Kind == stock.AbsoluteScopeGlobal && t.Scope.WarehouseID == uuid.Nil {
			t.Scope.WarehouseID = s.defaultWarehouseID
		}
		if err := t.Scope.Validate(); err != nil {
			return nil, err
		}
		if t.Scope.Kind == stock.AbsoluteScopeLocation {
			locations = append(locations, t.Scope.Location)
		}
	}

	warehouses, err := stock.ResolveWarehouses(ctx, s.directory, tenantID, locations)
	if err != nil {
		return nil, fmt.Errorf("resolve warehouses: %w", err)
	}
	// deltas are computed against the aggregates before the batch
	for i := range targets {
		for j := range i {
			if targets[i].ProductID == targets[j].ProductID && targets[i].Scope.Overlaps(targets[j].Scope, warehouses) {
				return nil, fmt.Errorf("%w: targets %d and %d set overlapping stock of product %s", shared.ErrInvalidInput, j, i, targets[i].ProductID)
			}
		}
	}

	now := s.now()
	var movements []stock.StockMovement
	for _, t := range targets {
		current, err := s.currentQuantity(ctx, tenantID, t)
		if err != nil {
			return nil, err
		}
		delta := stock.CalculateDelta(t.Quantity, current)

		var locationWarehouse *uuid.UUID
		if t.Scope.Kind == stock.AbsoluteScopeLocation {
			if w, ok := warehouses.WarehouseOf(t.Scope.Location); ok {
				locationWarehouse = &w
			}
		}
		m := stock.CorrectionMovement(tenantID, t.ProductID, delta, t.Scope, locationWarehouse, now)
		if m == nil {
			continue
		}
		m.UserID = userID
		m.Comment = "absolute stock correction"
		movements = append(movements, *m)
	}

	if len(movements) == 0 {
		return &AbsoluteStockResult{}, nil
	}
	moved, err := s.mover.MoveStock(ctx, tenantID, movements)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Absolute stock corrections booked",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("targets", len(targets)),
		zap.Int("movements", len(movements)),
	)
	return &AbsoluteStockResult{Movements: moved.Movements, Replayed: moved.Replayed}, nil
}

func (s *AbsoluteStockService) currentQuantity(ctx context.Context, tenantID uuid.UUID, t AbsoluteStockTarget) (*int64, error) {
	var (
		current *int64
		err     error
	)
	switch t.Scope.Kind {
	case stock.AbsoluteScopeLocation:
		current, err = s.stockRepo.FindQuantity(ctx, tenantID, t.ProductID, t.Scope.Location)
	case stock.AbsoluteScopeWarehouse:
		current, err = s.stockRepo.FindWarehouseQuantity(ctx, tenantID, t.ProductID, t.Scope.WarehouseID)
	case stock.AbsoluteScopeGlobal:
		current, err = s.stockRepo.SumWarehouseQuantities(ctx, tenantID, t.ProductID)
	}
	if err != nil {
		return nil, fmt.Errorf("read current stock: %w", err)
	}
	return current, nil
}
