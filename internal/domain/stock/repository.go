package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MovementFilter narrows ledger reads
type MovementFilter struct {
	Location *LocationReference
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// StockMovementRepository is the append-only ledger
type StockMovementRepository interface {
	// FindExistingIDs returns which of the given ids are already recorded
	FindExistingIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error)
	// Append inserts a validated batch; it never updates existing rows
	Append(ctx context.Context, movements []StockMovement) error
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*StockMovement, error)
	// FindByIDs returns the recorded movements among ids; missing ids are skipped
	FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]StockMovement, error)
	FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter MovementFilter) ([]StockMovement, int64, error)
	// Replay streams the whole ledger of a tenant in batches. Batch order is
	// unspecified, so fn must fold movements order-independently.
	Replay(ctx context.Context, tenantID uuid.UUID, batchSize int, fn func([]StockMovement) error) error
	// FlowEdges sums quantities per (source, destination) for movements touching the query locations
	FlowEdges(ctx context.Context, tenantID uuid.UUID, query FlowQuery) ([]FlowEdge, error)
	// Tenants returns every tenant with ledger rows
	Tenants(ctx context.Context) ([]uuid.UUID, error)
}

// StockRepository holds the derived aggregates. It is written only by the ledger
// append path and by explicit reconciliation.
type StockRepository interface {
	ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []StockDelta) error
	ApplyWarehouseDeltas(ctx context.Context, tenantID uuid.UUID, deltas []WarehouseStockDelta) error
	// FindQuantity returns nil when no row exists
	FindQuantity(ctx context.Context, tenantID, productID uuid.UUID, location LocationReference) (*int64, error)
	// FindWarehouseQuantity returns nil when no row exists
	FindWarehouseQuantity(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*int64, error)
	// SumWarehouseQuantities returns the physical stock across all warehouses, nil without rows
	SumWarehouseQuantities(ctx context.Context, tenantID, productID uuid.UUID) (*int64, error)
	FindByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]Stock, error)
	FindWarehouseStocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]WarehouseStock, error)
	// FindInWarehouse returns positive stock of the products on bins of the warehouse
	// and at the warehouse location itself
	FindInWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]Stock, error)
	FindAtLocation(ctx context.Context, tenantID uuid.UUID, location LocationReference, productIDs []uuid.UUID) ([]Stock, error)
	FindAll(ctx context.Context, tenantID uuid.UUID) ([]Stock, []WarehouseStock, error)
	// ReplaceAll overwrites every aggregate of the tenant
	ReplaceAll(ctx context.Context, tenantID uuid.UUID, stocks []Stock, warehouseStocks []WarehouseStock) error
}

// LocationDirectory reads the warehouse layout
type LocationDirectory interface {
	FindBinLocations(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]BinLocation, error)
	FindBinLocationsByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]BinLocation, error)
	FindStockContainers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]StockContainer, error)
	ExistsWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) (bool, error)
}

// ResolveWarehouses builds a WarehouseMap for the physical locations of the movements
func ResolveWarehouses(ctx context.Context, dir LocationDirectory, tenantID uuid.UUID, locations []LocationReference) (WarehouseMap, error) {
	var binIDs, containerIDs []uuid.UUID
	for _, l := range locations {
		switch l.Type() {
		case LocationTypeBinLocation:
			binIDs = append(binIDs, l.ID())
		case LocationTypeStockContainer:
			containerIDs = append(containerIDs, l.ID())
		}
	}
	result := make(WarehouseMap)
	if len(binIDs) > 0 {
		bins, err := dir.FindBinLocations(ctx, tenantID, binIDs)
		if err != nil {
			return nil, err
		}
		for _, b := range bins {
			result[b.Reference()] = b.WarehouseID
		}
	}
	if len(containerIDs) > 0 {
		containers, err := dir.FindStockContainers(ctx, tenantID, containerIDs)
		if err != nil {
			return nil, err
		}
		for _, c := range containers {
			if c.WarehouseID != nil {
				result[AtStockContainer(c.ID)] = *c.WarehouseID
			}
		}
	}
	return result, nil
}

// MovementLocations returns the distinct locations touched by the movements
func MovementLocations(movements []StockMovement) []LocationReference {
	seen := make(map[LocationReference]struct{})
	var out []LocationReference
	for _, m := range movements {
		for _, l := range []LocationReference{m.Source, m.Destination} {
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	return out
}
