package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MoveStockResult reports the outcome of a MoveStock call
type MoveStockResult struct {
	Movements []stock.StockMovement
	// Replayed is true when every id of the batch was already recorded and
	// nothing was written.
	Replayed bool
	// NegativeStocks lists physical locations left below zero by the batch
	NegativeStocks []stock.Stock
}

// StockMovementService is the only writer of the ledger and its aggregates
type StockMovementService struct {
	txScope        TransactionScope
	movementRepo   stock.StockMovementRepository
	eventPublisher shared.EventPublisher
	metrics        *telemetry.StockMetrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewStockMovementService creates a new StockMovementService
func NewStockMovementService(txScope TransactionScope, movementRepo stock.StockMovementRepository, logger *zap.Logger) *StockMovementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockMovementService{
		txScope:      txScope,
		movementRepo: movementRepo,
		logger:       logger,
		now:          time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *StockMovementService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the metrics recorder
func (s *StockMovementService) SetStockMetrics(metrics *telemetry.StockMetrics) {
	s.metrics = metrics
}

// MoveStock appends a batch of movements and updates the aggregates atomically.
// Submitting an already recorded batch again is a no-op.
func (s *StockMovementService) MoveStock(ctx context.Context, tenantID uuid.UUID, movements []stock.StockMovement) (*MoveStockResult, error) {
	start := s.now()
	batch, err := s.prepareBatch(tenantID, movements)
	if err != nil {
		s.recordMove(ctx, tenantID, telemetry.MoveOutcomeRejected, nil, start)
		return nil, err
	}

	var result *MoveStockResult
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		r, err := s.applyBatch(ctx, repos, tenantID, batch)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		outcome := telemetry.MoveOutcomeFailed
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) && !errors.Is(err, shared.ErrConcurrencyConflict) {
			outcome = telemetry.MoveOutcomeRejected
		}
		s.recordMove(ctx, tenantID, outcome, batch, start)
		return nil, err
	}

	if result.Replayed {
		s.logger.Info("Stock movement batch replayed",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("movements", len(batch)),
		)
		s.recordMove(ctx, tenantID, telemetry.MoveOutcomeReplayed, batch, start)
		return result, nil
	}

	for _, neg := range result.NegativeStocks {
		s.logger.Warn("Physical stock went negative",
			zap.String("tenant_id", tenantID.String()),
			zap.String("product_id", neg.ProductID.String()),
			zap.String("location", neg.Location.Key()),
			zap.Int64("quantity", neg.Quantity),
		)
	}
	s.recordMove(ctx, tenantID, telemetry.MoveOutcomeRecorded, batch, start)
	s.publish(ctx, stock.NewStockMovementsRecordedEvent(tenantID, batch))
	return result, nil
}

// prepareBatch fills tenant and timestamp defaults and validates the batch
func (s *StockMovementService) prepareBatch(tenantID uuid.UUID, movements []stock.StockMovement) ([]stock.StockMovement, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant is required", shared.ErrInvalidInput)
	}
	now := s.now()
	batch := make([]stock.StockMovement, len(movements))
	for i, m := range movements {
		if m.TenantID == uuid.Nil {
			m.TenantID = tenantID
		}
		if m.TenantID != tenantID {
			return nil, stock.NewInvalidMovementError(i, m.ID, "movement belongs to another tenant")
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		batch[i] = m
	}
	if err := stock.ValidateBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// applyBatch runs inside the transaction and may be executed more than once
func (s *StockMovementService) applyBatch(ctx context.Context, repos TransactionalRepositories, tenantID uuid.UUID, batch []stock.StockMovement) (*MoveStockResult, error) {
	ids := stock.MovementIDs(batch)
	existing, err := repos.MovementRepo().FindExistingIDs(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("look up movement ids: %w", err)
	}
	switch {
	case len(existing) == len(ids):
		return &MoveStockResult{Movements: batch, Replayed: true}, nil
	case len(existing) > 0:
		return nil, stock.NewPartialReplayError(existing, len(ids))
	}

	resolver, err := resolveLayout(ctx, repos.LocationDirectory(), tenantID, batch)
	if err != nil {
		return nil, err
	}

	if err := repos.MovementRepo().Append(ctx, batch); err != nil {
		return nil, fmt.Errorf("append movements: %w", err)
	}

	projection := stock.NewProjection(resolver)
	projection.ApplyAll(batch)
	deltas := projection.StockDeltas()
	if err := repos.StockRepo().ApplyDeltas(ctx, tenantID, deltas); err != nil {
		return nil, fmt.Errorf("apply stock deltas: %w", err)
	}
	if err := repos.StockRepo().ApplyWarehouseDeltas(ctx, tenantID, projection.WarehouseDeltas()); err != nil {
		return nil, fmt.Errorf("apply warehouse deltas: %w", err)
	}

	result := &MoveStockResult{Movements: batch}
	for _, d := range deltas {
		if d.Delta >= 0 || !d.Location.IsPhysical() {
			continue
		}
		qty, err := repos.StockRepo().FindQuantity(ctx, tenantID, d.ProductID, d.Location)
		if err != nil {
			return nil, fmt.Errorf("read stock after update: %w", err)
		}
		if qty != nil && *qty < 0 {
			result.NegativeStocks = append(result.NegativeStocks, stock.Stock{
				TenantID:  tenantID,
				ProductID: d.ProductID,
				Location:  d.Location,
				Quantity:  *qty,
			})
		}
	}
	return result, nil
}

// resolveLayout maps the physical locations of the batch to their warehouses and
// rejects references to bins, containers or warehouses that do not exist.
func resolveLayout(ctx context.Context, dir stock.LocationDirectory, tenantID uuid.UUID, batch []stock.StockMovement) (stock.WarehouseMap, error) {
	locations := stock.MovementLocations(batch)
	resolver, err := stock.ResolveWarehouses(ctx, dir, tenantID, locations)
	if err != nil {
		return nil, fmt.Errorf("resolve warehouses: %w", err)
	}

	containers := make(map[uuid.UUID]struct{})
	var containerIDs []uuid.UUID
	for _, l := range locations {
		if l.Type() == stock.LocationTypeStockContainer {
			containerIDs = append(containerIDs, l.ID())
		}
	}
	if len(containerIDs) > 0 {
		found, err := dir.FindStockContainers(ctx, tenantID, containerIDs)
		if err != nil {
			return nil, fmt.Errorf("find stock containers: %w", err)
		}
		for _, c := range found {
			containers[c.ID] = struct{}{}
		}
	}

	checkedWarehouses := make(map[uuid.UUID]bool)
	for i, m := range batch {
		for _, l := range []stock.LocationReference{m.Source, m.Destination} {
			var reason string
			switch l.Type() {
			case stock.LocationTypeBinLocation:
				if _, ok := resolver[l]; !ok {
					reason = "unknown bin location " + l.ID().String()
				}
			case stock.LocationTypeStockContainer:
				if _, ok := containers[l.ID()]; !ok {
					reason = "unknown stock container " + l.ID().String()
				}
			case stock.LocationTypeWarehouse, stock.LocationTypeUnknown:
				exists, ok := checkedWarehouses[l.ID()]
				if !ok {
					exists, err = dir.ExistsWarehouse(ctx, tenantID, l.ID())
					if err != nil {
						return nil, fmt.Errorf("check warehouse: %w", err)
					}
					checkedWarehouses[l.ID()] = exists
				}
				if !exists {
					reason = "unknown warehouse " + l.ID().String()
				}
			}
			if reason != "" {
				return nil, stock.NewInvalidMovementError(i, m.ID, reason)
			}
		}
	}
	return resolver, nil
}

// GetMovement returns one ledger row
func (s *StockMovementService) GetMovement(ctx context.Context, tenantID, movementID uuid.UUID) (*stock.StockMovement, error) {
	return s.movementRepo.FindByID(ctx, tenantID, movementID)
}

// FindMovements returns the recorded movements among ids
func (s *StockMovementService) FindMovements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockMovement, error) {
	return s.movementRepo.FindByIDs(ctx, tenantID, ids)
}

// ListMovements returns the ledger rows of a product, newest first
func (s *StockMovementService) ListMovements(ctx context.Context, tenantID, productID uuid.UUID, filter stock.MovementFilter) ([]stock.StockMovement, int64, error) {
	return s.movementRepo.FindByProduct(ctx, tenantID, productID, filter)
}

func (s *StockMovementService) recordMove(ctx context.Context, tenantID uuid.UUID, outcome string, batch []stock.StockMovement, start time.Time) {
	if s.metrics == nil {
		return
	}
	var quantity int64
	for _, m := range batch {
		quantity += m.Quantity
	}
	s.metrics.RecordMoveStock(ctx, tenantID, outcome, len(batch), quantity, s.now().Sub(start))
}

func (s *StockMovementService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish stock events", zap.Error(err))
	}
}
