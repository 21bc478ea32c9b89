package stock

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// StockDrift is one aggregate row that disagrees with the ledger
type StockDrift struct {
	ProductID   uuid.UUID          `json:"product_id"`
	Location    *LocationReference `json:"location,omitempty"`
	WarehouseID *uuid.UUID         `json:"warehouse_id,omitempty"`
	Stored      int64              `json:"stored"`
	Expected    int64              `json:"expected"`
}

// Difference returns stored minus expected
func (d StockDrift) Difference() int64 {
	return d.Stored - d.Expected
}

// DriftReport is the outcome of replaying the ledger against the aggregates
type DriftReport struct {
	ID                uuid.UUID    `json:"id"`
	TenantID          uuid.UUID    `json:"tenant_id"`
	GeneratedAt       time.Time    `json:"generated_at"`
	MovementsReplayed int64        `json:"movements_replayed"`
	Drifts            []StockDrift `json:"drifts"`
	Corrected         bool         `json:"corrected"`
}

// HasDrift reports whether any aggregate diverged
func (r *DriftReport) HasDrift() bool {
	return len(r.Drifts) > 0
}

// DetectDrift compares stored aggregates with a projection rebuilt from the ledger
func DetectDrift(expected *Projection, stored []Stock, storedWarehouses []WarehouseStock) []StockDrift {
	var drifts []StockDrift

	storedStocks := make(map[StockKey]int64, len(stored))
	for _, s := range stored {
		storedStocks[StockKey{ProductID: s.ProductID, Location: s.Location}] = s.Quantity
	}
	stockKeys := make(map[StockKey]struct{}, len(storedStocks)+len(expected.stocks))
	for k := range storedStocks {
		stockKeys[k] = struct{}{}
	}
	for k := range expected.stocks {
		stockKeys[k] = struct{}{}
	}
	for k := range stockKeys {
		if storedStocks[k] != expected.stocks[k] {
			loc := k.Location
			drifts = append(drifts, StockDrift{ProductID: k.ProductID, Location: &loc, Stored: storedStocks[k], Expected: expected.stocks[k]})
		}
	}

	storedWh := make(map[WarehouseStockKey]int64, len(storedWarehouses))
	for _, s := range storedWarehouses {
		storedWh[WarehouseStockKey{ProductID: s.ProductID, WarehouseID: s.WarehouseID}] = s.Quantity
	}
	whKeys := make(map[WarehouseStockKey]struct{}, len(storedWh)+len(expected.warehouses))
	for k := range storedWh {
		whKeys[k] = struct{}{}
	}
	for k := range expected.warehouses {
		whKeys[k] = struct{}{}
	}
	for k := range whKeys {
		if storedWh[k] != expected.warehouses[k] {
			wh := k.WarehouseID
			drifts = append(drifts, StockDrift{ProductID: k.ProductID, WarehouseID: &wh, Stored: storedWh[k], Expected: expected.warehouses[k]})
		}
	}

	slices.SortFunc(drifts, func(a, b StockDrift) int {
		if c := cmp.Compare(a.ProductID.String(), b.ProductID.String()); c != 0 {
			return c
		}
		return cmp.Compare(driftTarget(a), driftTarget(b))
	})
	return drifts
}

func driftTarget(d StockDrift) string {
	if d.Location != nil {
		return d.Location.Key()
	}
	return "~warehouse:" + d.WarehouseID.String()
}
