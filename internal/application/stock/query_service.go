package stock

import (
	"context"
	"fmt"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
)

// FlowMode selects how the subject locations of a flow query are aggregated
type FlowMode string

const (
	// FlowModeSingle reports one flow per location
	FlowModeSingle FlowMode = "single"
	// FlowModeCombined treats all locations as one
	FlowModeCombined FlowMode = "combined"
	// FlowModeByType groups the locations by their own type
	FlowModeByType FlowMode = "by_type"
)

// StockFlowResult holds the flow of a query in the shape selected by the mode
type StockFlowResult struct {
	Mode       FlowMode
	ByLocation map[stock.LocationReference]stock.StockFlow
	Combined   *stock.StockFlow
	ByType     map[stock.LocationType]stock.StockFlow
}

// StockQueryService serves read-only stock views
type StockQueryService struct {
	movementRepo stock.StockMovementRepository
	stockRepo    stock.StockRepository
	reserved     ReservedStockReader
}

// NewStockQueryService creates a new StockQueryService
func NewStockQueryService(movementRepo stock.StockMovementRepository, stockRepo stock.StockRepository, reserved ReservedStockReader) *StockQueryService {
	return &StockQueryService{
		movementRepo: movementRepo,
		stockRepo:    stockRepo,
		reserved:     reserved,
	}
}

// StocksByProduct returns the per-location stock of a product
func (s *StockQueryService) StocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.Stock, error) {
	return s.stockRepo.FindByProduct(ctx, tenantID, productID)
}

// WarehouseStocksByProduct returns the per-warehouse stock of a product
func (s *StockQueryService) WarehouseStocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.WarehouseStock, error) {
	return s.stockRepo.FindWarehouseStocksByProduct(ctx, tenantID, productID)
}

// StocksAtLocation returns the stock held at one location
func (s *StockQueryService) StocksAtLocation(ctx context.Context, tenantID uuid.UUID, location stock.LocationReference) ([]stock.Stock, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	return s.stockRepo.FindAtLocation(ctx, tenantID, location, nil)
}

// ReservedStock returns internal and external reservations per product
func (s *StockQueryService) ReservedStock(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]stock.ReservedStock, error) {
	if len(productIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one product id is required", shared.ErrInvalidInput)
	}
	return s.reserved.Reserved(ctx, tenantID, productIDs)
}

// StockFlow aggregates the ledger movements touching the query locations
func (s *StockQueryService) StockFlow(ctx context.Context, tenantID uuid.UUID, query stock.FlowQuery, mode FlowMode) (*StockFlowResult, error) {
	if len(query.Locations) == 0 {
		return nil, fmt.Errorf("%w: stock flow requires at least one location", shared.ErrInvalidInput)
	}
	for _, l := range query.Locations {
		if err := l.Validate(); err != nil {
			return nil, err
		}
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, fmt.Errorf("%w: flow range ends before it starts", shared.ErrInvalidInput)
	}
	switch mode {
	case "":
		mode = FlowModeSingle
	case FlowModeSingle, FlowModeCombined, FlowModeByType:
	default:
		return nil, fmt.Errorf("%w: unknown flow mode %q", shared.ErrInvalidInput, mode)
	}

	edges, err := s.movementRepo.FlowEdges(ctx, tenantID, query)
	if err != nil {
		return nil, fmt.Errorf("read flow edges: %w", err)
	}

	result := &StockFlowResult{Mode: mode}
	switch mode {
	case FlowModeSingle:
		result.ByLocation = make(map[stock.LocationReference]stock.StockFlow, len(query.Locations))
		for _, l := range query.Locations {
			result.ByLocation[l] = stock.CalculateStockFlow(l, edges)
		}
	case FlowModeCombined:
		combined := stock.CombineStockFlows(query.Locations, edges)
		result.Combined = &combined
	case FlowModeByType:
		result.ByType = stock.StockFlowByLocationType(query.Locations, edges)
	}
	return result, nil
}
