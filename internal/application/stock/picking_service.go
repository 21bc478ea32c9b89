package stock

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StrategyProvider resolves picking preferences and routing strategies by name.
// An empty or unknown name yields the configured default.
type StrategyProvider interface {
	GetPickingPreferenceOrDefault(name string) stock.PickingPreference
	GetRoutingStrategyOrDefault(name string) stock.RoutingStrategy
}

// ReservedStockReader computes reserved stock per product
type ReservedStockReader interface {
	Reserved(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]stock.ReservedStock, error)
}

// StockMover books a batch of movements
type StockMover interface {
	MoveStock(ctx context.Context, tenantID uuid.UUID, movements []stock.StockMovement) (*MoveStockResult, error)
}

// PickMover books picks and finds batches booked by earlier attempts
type PickMover interface {
	StockMover
	FindMovements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockMovement, error)
}

// pickReplayWindow is how many seeded ids are looked up per query
const pickReplayWindow = 64

// PickingOptions overrides the default strategies for one request
type PickingOptions struct {
	PickingStrategy string
	RoutingStrategy string
}

// PickRequest is a picking request that is booked to a destination
type PickRequest struct {
	stock.PickingRequest
	Destination stock.LocationReference
	// AllowPartial books whatever could be allocated when stock is short
	AllowPartial bool
	// IdempotencyKey makes retried requests produce the same movement ids
	IdempotencyKey *uuid.UUID
	UserID         *uuid.UUID
	Comment        string
	Options        PickingOptions
}

// PickResult is the outcome of Pick
type PickResult struct {
	Solution  *stock.PickingSolution
	Movements []stock.StockMovement
	Replayed  bool
	// Shortages is set when a partial solution was booked
	Shortages []stock.ProductShortage
}

// PickingService allocates stock for picking requests and books the picks
type PickingService struct {
	stockRepo      stock.StockRepository
	directory      stock.LocationDirectory
	reserved       ReservedStockReader
	strategies     StrategyProvider
	mover          PickMover
	eventPublisher shared.EventPublisher
	metrics        *telemetry.StockMetrics
	logger         *zap.Logger
}

// NewPickingService creates a new PickingService
func NewPickingService(
	stockRepo stock.StockRepository,
	directory stock.LocationDirectory,
	reserved ReservedStockReader,
	strategies StrategyProvider,
	mover PickMover,
	logger *zap.Logger,
) *PickingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PickingService{
		stockRepo:  stockRepo,
		directory:  directory,
		reserved:   reserved,
		strategies: strategies,
		mover:      mover,
		logger:     logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *PickingService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the metrics recorder
func (s *PickingService) SetStockMetrics(metrics *telemetry.StockMetrics) {
	s.metrics = metrics
}

// CalculatePickingSolution allocates the request and returns the routed solution.
// On shortage the returned error is a *stock.ShortageError whose partial solution
// is routed as well.
func (s *PickingService) CalculatePickingSolution(ctx context.Context, tenantID uuid.UUID, req stock.PickingRequest, opts PickingOptions) (*stock.PickingSolution, error) {
	var solution *stock.PickingSolution
	var err error
	labels := map[string]string{
		telemetry.ProfilingLabelOperation: "picking",
		telemetry.ProfilingLabelTenantID:  tenantID.String(),
	}
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		solution, err = s.calculate(ctx, tenantID, req, opts)
	})
	return solution, err
}

func (s *PickingService) calculate(ctx context.Context, tenantID uuid.UUID, req stock.PickingRequest, opts PickingOptions) (*stock.PickingSolution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	productIDs := req.ProductIDs()

	candidates, stops, err := s.loadCandidates(ctx, tenantID, req.SourceArea, productIDs)
	if err != nil {
		return nil, err
	}

	var limits map[uuid.UUID]int64
	if req.ProtectReservedStock {
		limits, err = s.reservedLimits(ctx, tenantID, productIDs, candidates)
		if err != nil {
			return nil, err
		}
	}

	allocator := stock.NewPickingAllocator(s.strategies.GetPickingPreferenceOrDefault(opts.PickingStrategy))
	router := stock.NewRouter(s.strategies.GetRoutingStrategyOrDefault(opts.RoutingStrategy))

	solution, err := allocator.Allocate(req, candidates, limits)
	var shortage *stock.ShortageError
	if errors.As(err, &shortage) {
		router.RouteSolution(shortage.PartialSolution, stops)
		s.recordPicking(ctx, tenantID, len(shortage.Shortages))
		s.logger.Info("Picking request short of stock",
			zap.String("tenant_id", tenantID.String()),
			zap.Int("products_short", len(shortage.Shortages)),
		)
		return nil, shortage
	}
	if err != nil {
		return nil, err
	}
	router.RouteSolution(solution, stops)
	s.recordPicking(ctx, tenantID, 0)
	return solution, nil
}

// loadCandidates reads positive stock in the source area together with the bin
// metadata the preference and routing strategies need
func (s *PickingService) loadCandidates(ctx context.Context, tenantID uuid.UUID, area stock.SourceArea, productIDs []uuid.UUID) (map[uuid.UUID][]stock.StockCandidate, map[stock.LocationReference]stock.RoutingStop, error) {
	var stocks []stock.Stock
	var bins []stock.BinLocation
	var err error

	if area.IsWarehouse() {
		exists, err := s.directory.ExistsWarehouse(ctx, tenantID, area.WarehouseID)
		if err != nil {
			return nil, nil, fmt.Errorf("check warehouse: %w", err)
		}
		if !exists {
			return nil, nil, fmt.Errorf("%w: warehouse %s", shared.ErrNotFound, area.WarehouseID)
		}
		stocks, err = s.stockRepo.FindInWarehouse(ctx, tenantID, area.WarehouseID, productIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("find stock in warehouse: %w", err)
		}
		bins, err = s.directory.FindBinLocationsByWarehouse(ctx, tenantID, area.WarehouseID)
		if err != nil {
			return nil, nil, fmt.Errorf("find bin locations: %w", err)
		}
	} else {
		stocks, err = s.stockRepo.FindAtLocation(ctx, tenantID, *area.Location, productIDs)
		if err != nil {
			return nil, nil, fmt.Errorf("find stock at location: %w", err)
		}
		if area.Location.Type() == stock.LocationTypeBinLocation {
			bins, err = s.directory.FindBinLocations(ctx, tenantID, []uuid.UUID{area.Location.ID()})
			if err != nil {
				return nil, nil, fmt.Errorf("find bin locations: %w", err)
			}
		}
	}

	binsByRef := make(map[stock.LocationReference]stock.BinLocation, len(bins))
	for _, b := range bins {
		binsByRef[b.Reference()] = b
	}

	candidates := make(map[uuid.UUID][]stock.StockCandidate)
	stops := make(map[stock.LocationReference]stock.RoutingStop)
	for _, st := range stocks {
		if st.Quantity <= 0 {
			continue
		}
		c := stock.StockCandidate{
			Location:      st.Location,
			Quantity:      st.Quantity,
			LastInboundAt: st.LastInboundAt,
		}
		if b, ok := binsByRef[st.Location]; ok {
			c.Code = b.Code
			c.Priority = b.Priority
		}
		candidates[st.ProductID] = append(candidates[st.ProductID], c)
		stops[st.Location] = stock.RoutingStop{Location: st.Location, Code: c.Code}
	}
	return candidates, stops, nil
}

// reservedLimits caps each product at its available stock minus reserved stock
func (s *PickingService) reservedLimits(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID, candidates map[uuid.UUID][]stock.StockCandidate) (map[uuid.UUID]int64, error) {
	if s.reserved == nil {
		return nil, nil
	}
	reserved, err := s.reserved.Reserved(ctx, tenantID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("calculate reserved stock: %w", err)
	}
	limits := make(map[uuid.UUID]int64, len(productIDs))
	for _, id := range productIDs {
		var available int64
		for _, c := range candidates[id] {
			available += c.Quantity
		}
		limits[id] = max(available-reserved[id].Total(), 0)
	}
	return limits, nil
}

// Pick calculates a solution and books it as movements to the destination
func (s *PickingService) Pick(ctx context.Context, tenantID uuid.UUID, req PickRequest) (*PickResult, error) {
	if err := req.Destination.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != nil {
		booked, err := s.findBookedPick(ctx, tenantID, *req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if len(booked) > 0 {
			if booked[0].Destination != req.Destination {
				return nil, fmt.Errorf("%w: idempotency key %s was booked to %s", shared.ErrAlreadyExists, *req.IdempotencyKey, booked[0].Destination.Key())
			}
			return replayedPick(booked), nil
		}
	}

	result := &PickResult{}
	solution, err := s.CalculatePickingSolution(ctx, tenantID, req.PickingRequest, req.Options)
	var shortage *stock.ShortageError
	switch {
	case errors.As(err, &shortage):
		s.publish(ctx, stock.NewPickingShortageEvent(tenantID, req.SourceArea, shortage))
		if !req.AllowPartial || shortage.PartialSolution.IsEmpty() {
			return nil, shortage
		}
		solution = shortage.PartialSolution
		result.Shortages = shortage.Shortages
	case err != nil:
		return nil, err
	}
	result.Solution = solution

	var opts []stock.MovementOption
	if req.IdempotencyKey != nil {
		opts = append(opts, stock.WithIDSeed(*req.IdempotencyKey))
	}
	if req.UserID != nil {
		opts = append(opts, stock.WithUser(*req.UserID))
	}
	if req.Comment != "" {
		opts = append(opts, stock.WithComment(req.Comment))
	}
	movements, err := solution.CreateStockMovementsWithDestination(tenantID, req.Destination, opts...)
	if err != nil {
		return nil, err
	}

	moved, err := s.mover.MoveStock(ctx, tenantID, movements)
	if err != nil {
		return nil, err
	}
	result.Movements = moved.Movements
	result.Replayed = moved.Replayed
	return result, nil
}

// findBookedPick returns the batch an earlier Pick booked under key, in pick
// order. Batches are appended atomically, so the first window that is not
// full ends the batch.
func (s *PickingService) findBookedPick(ctx context.Context, tenantID, key uuid.UUID) ([]stock.StockMovement, error) {
	var booked []stock.StockMovement
	for start := 0; ; start += pickReplayWindow {
		ids := make([]uuid.UUID, pickReplayWindow)
		index := make(map[uuid.UUID]int, pickReplayWindow)
		for i := range ids {
			ids[i] = stock.SeededMovementID(key, start+i)
			index[ids[i]] = start + i
		}
		found, err := s.mover.FindMovements(ctx, tenantID, ids)
		if err != nil {
			return nil, fmt.Errorf("look up booked picks: %w", err)
		}
		slices.SortFunc(found, func(a, b stock.StockMovement) int { return cmp.Compare(index[a.ID], index[b.ID]) })
		booked = append(booked, found...)
		if len(found) < pickReplayWindow {
			return booked, nil
		}
	}
}

// replayedPick rebuilds the result of an earlier Pick from its booked movements
func replayedPick(booked []stock.StockMovement) *PickResult {
	solution := &stock.PickingSolution{Picks: make([]stock.ProductPick, len(booked))}
	for i, m := range booked {
		solution.Picks[i] = stock.ProductPick{ProductID: m.ProductID, Quantity: m.Quantity, Location: m.Source}
	}
	return &PickResult{Solution: solution, Movements: booked, Replayed: true}
}

func (s *PickingService) recordPicking(ctx context.Context, tenantID uuid.UUID, shortages int) {
	if s.metrics != nil {
		s.metrics.RecordPickingSolution(ctx, tenantID, shortages)
	}
}

func (s *PickingService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish picking events", zap.Error(err))
	}
}
