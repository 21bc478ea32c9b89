package stock

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Stock is the derived quantity of a product at one location
type Stock struct {
	TenantID      uuid.UUID
	ProductID     uuid.UUID
	Location      LocationReference
	Quantity      int64
	LastInboundAt *time.Time
}

// WarehouseStock is the derived quantity of a product inside one warehouse
type WarehouseStock struct {
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int64
}

// StockKey addresses one (product, location) aggregate row
type StockKey struct {
	ProductID uuid.UUID
	Location  LocationReference
}

// WarehouseStockKey addresses one (product, warehouse) aggregate row
type WarehouseStockKey struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
}

// StockDelta is a signed change to a (product, location) aggregate
type StockDelta struct {
	StockKey
	Delta int64
	// InboundAt is set when the location received stock
	InboundAt *time.Time
}

// WarehouseStockDelta is a signed change to a (product, warehouse) aggregate
type WarehouseStockDelta struct {
	WarehouseStockKey
	Delta int64
}

// WarehouseResolver maps physical locations to their warehouse
type WarehouseResolver interface {
	WarehouseOf(location LocationReference) (uuid.UUID, bool)
}

// WarehouseMap is a WarehouseResolver backed by a map. Warehouse references
// resolve to themselves without an entry.
type WarehouseMap map[LocationReference]uuid.UUID

// WarehouseOf implements WarehouseResolver
func (m WarehouseMap) WarehouseOf(location LocationReference) (uuid.UUID, bool) {
	if location.Type() == LocationTypeWarehouse {
		return location.ID(), true
	}
	if !location.IsPhysical() {
		return uuid.Nil, false
	}
	id, ok := m[location]
	return id, ok
}

// Projection folds movements into per-location and per-warehouse totals.
// It is used both to compute the deltas of a batch and to rebuild aggregates
// from the ledger.
type Projection struct {
	stocks     map[StockKey]int64
	inbound    map[StockKey]time.Time
	warehouses map[WarehouseStockKey]int64
	resolver   WarehouseResolver
}

// NewProjection creates an empty projection
func NewProjection(resolver WarehouseResolver) *Projection {
	if resolver == nil {
		resolver = WarehouseMap{}
	}
	return &Projection{
		stocks:     make(map[StockKey]int64),
		inbound:    make(map[StockKey]time.Time),
		warehouses: make(map[WarehouseStockKey]int64),
		resolver:   resolver,
	}
}

// Apply folds one movement into the projection
func (p *Projection) Apply(m StockMovement) {
	src := StockKey{ProductID: m.ProductID, Location: m.Source}
	dst := StockKey{ProductID: m.ProductID, Location: m.Destination}
	p.stocks[src] -= m.Quantity
	p.stocks[dst] += m.Quantity
	if last, ok := p.inbound[dst]; !ok || m.CreatedAt.After(last) {
		p.inbound[dst] = m.CreatedAt
	}

	srcWarehouse, srcOK := p.resolver.WarehouseOf(m.Source)
	dstWarehouse, dstOK := p.resolver.WarehouseOf(m.Destination)
	if srcOK && dstOK && srcWarehouse == dstWarehouse {
		return
	}
	if srcOK {
		p.warehouses[WarehouseStockKey{ProductID: m.ProductID, WarehouseID: srcWarehouse}] -= m.Quantity
	}
	if dstOK {
		p.warehouses[WarehouseStockKey{ProductID: m.ProductID, WarehouseID: dstWarehouse}] += m.Quantity
	}
}

// ApplyAll folds a batch of movements
func (p *Projection) ApplyAll(movements []StockMovement) {
	for _, m := range movements {
		p.Apply(m)
	}
}

// Quantity returns the projected quantity of a product at a location
func (p *Projection) Quantity(productID uuid.UUID, location LocationReference) int64 {
	return p.stocks[StockKey{ProductID: productID, Location: location}]
}

// WarehouseQuantity returns the projected quantity of a product in a warehouse
func (p *Projection) WarehouseQuantity(productID, warehouseID uuid.UUID) int64 {
	return p.warehouses[WarehouseStockKey{ProductID: productID, WarehouseID: warehouseID}]
}

// StockDeltas returns the non-zero location deltas sorted by product and location key
func (p *Projection) StockDeltas() []StockDelta {
	deltas := make([]StockDelta, 0, len(p.stocks))
	for key, qty := range p.stocks {
		if qty == 0 {
			continue
		}
		d := StockDelta{StockKey: key, Delta: qty}
		if at, ok := p.inbound[key]; ok && qty > 0 {
			d.InboundAt = &at
		}
		deltas = append(deltas, d)
	}
	slices.SortFunc(deltas, func(a, b StockDelta) int { return compareStockKeys(a.StockKey, b.StockKey) })
	return deltas
}

// WarehouseDeltas returns the non-zero warehouse deltas sorted by product and warehouse
func (p *Projection) WarehouseDeltas() []WarehouseStockDelta {
	deltas := make([]WarehouseStockDelta, 0, len(p.warehouses))
	for key, qty := range p.warehouses {
		if qty == 0 {
			continue
		}
		deltas = append(deltas, WarehouseStockDelta{WarehouseStockKey: key, Delta: qty})
	}
	slices.SortFunc(deltas, func(a, b WarehouseStockDelta) int {
		return compareWarehouseKeys(a.WarehouseStockKey, b.WarehouseStockKey)
	})
	return deltas
}

// Stocks returns the projected rows, including zero rows for touched keys
func (p *Projection) Stocks(tenantID uuid.UUID) []Stock {
	rows := make([]Stock, 0, len(p.stocks))
	for key, qty := range p.stocks {
		row := Stock{TenantID: tenantID, ProductID: key.ProductID, Location: key.Location, Quantity: qty}
		if at, ok := p.inbound[key]; ok {
			row.LastInboundAt = &at
		}
		rows = append(rows, row)
	}
	slices.SortFunc(rows, func(a, b Stock) int {
		return compareStockKeys(StockKey{a.ProductID, a.Location}, StockKey{b.ProductID, b.Location})
	})
	return rows
}

// WarehouseStocks returns the projected per-warehouse rows
func (p *Projection) WarehouseStocks(tenantID uuid.UUID) []WarehouseStock {
	rows := make([]WarehouseStock, 0, len(p.warehouses))
	for key, qty := range p.warehouses {
		rows = append(rows, WarehouseStock{TenantID: tenantID, ProductID: key.ProductID, WarehouseID: key.WarehouseID, Quantity: qty})
	}
	slices.SortFunc(rows, func(a, b WarehouseStock) int {
		return compareWarehouseKeys(WarehouseStockKey{a.ProductID, a.WarehouseID}, WarehouseStockKey{b.ProductID, b.WarehouseID})
	})
	return rows
}

// NegativePhysicalKeys returns touched physical locations whose projected quantity is negative
func (p *Projection) NegativePhysicalKeys() []StockKey {
	var keys []StockKey
	for key, qty := range p.stocks {
		if qty < 0 && key.Location.IsPhysical() {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, compareStockKeys)
	return keys
}

func compareStockKeys(a, b StockKey) int {
	if c := cmp.Compare(a.ProductID.String(), b.ProductID.String()); c != 0 {
		return c
	}
	return cmp.Compare(a.Location.Key(), b.Location.Key())
}

func compareWarehouseKeys(a, b WarehouseStockKey) int {
	if c := cmp.Compare(a.ProductID.String(), b.ProductID.String()); c != 0 {
		return c
	}
	return cmp.Compare(a.WarehouseID.String(), b.WarehouseID.String())
}
