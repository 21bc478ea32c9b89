package stock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OrderDemand is the open quantity of a product on one order:
// ordered minus already shipped, never negative.
type OrderDemand struct {
	OrderID           uuid.UUID
	ProductID         uuid.UUID
	OpenQuantity      int64
	ExternallyManaged bool
}

// OrderDemandReader reads open order demand from the order read model
type OrderDemandReader interface {
	OpenDemand(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) ([]OrderDemand, error)
}

// ExternalReservationCollector contributes quantities reserved by an external system
type ExternalReservationCollector interface {
	Name() string
	CollectReservations(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// ExternallyManagedCollector flags orders fulfilled by a third party
type ExternallyManagedCollector interface {
	Name() string
	CollectExternallyManaged(ctx context.Context, tenantID uuid.UUID, orderIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// ReservedStock is the reserved quantity of one product
type ReservedStock struct {
	ProductID uuid.UUID `json:"product_id"`
	Internal  int64     `json:"internal"`
	External  int64     `json:"external"`
}

// Total returns internal plus external reservation
func (r ReservedStock) Total() int64 {
	return r.Internal + r.External
}

// MergeQuantities adds src into dst
func MergeQuantities(dst, src map[uuid.UUID]int64) {
	for id, qty := range src {
		dst[id] += qty
	}
}

// MergeFlags ORs src into dst; a flag once set stays set
func MergeFlags(dst, src map[uuid.UUID]bool) {
	for id, flag := range src {
		dst[id] = dst[id] || flag
	}
}

// ReservedStockCalculator computes reserved stock from open orders and
// registered external collectors
type ReservedStockCalculator struct {
	demand          OrderDemandReader
	mu              sync.RWMutex
	reservations    []ExternalReservationCollector
	externalManaged []ExternallyManagedCollector
}

// NewReservedStockCalculator creates a calculator reading demand from the given reader
func NewReservedStockCalculator(demand OrderDemandReader) *ReservedStockCalculator {
	return &ReservedStockCalculator{demand: demand}
}

// RegisterReservationCollector adds an external reservation source
func (c *ReservedStockCalculator) RegisterReservationCollector(collector ExternalReservationCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reservations = append(c.reservations, collector)
}

// RegisterExternallyManagedCollector adds a source of externally-managed flags
func (c *ReservedStockCalculator) RegisterExternallyManagedCollector(collector ExternallyManagedCollector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.externalManaged = append(c.externalManaged, collector)
}

// InternalReserved sums open demand of orders that are not externally managed
func (c *ReservedStockCalculator) InternalReserved(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	result := zeroQuantities(productIDs)
	if len(productIDs) == 0 {
		return result, nil
	}

	demands, err := c.demand.OpenDemand(ctx, tenantID, productIDs)
	if err != nil {
		return nil, fmt.Errorf("read open order demand: %w", err)
	}

	flags := make(map[uuid.UUID]bool)
	orderSet := make(map[uuid.UUID]struct{})
	orderIDs := make([]uuid.UUID, 0)
	for _, d := range demands {
		flags[d.OrderID] = flags[d.OrderID] || d.ExternallyManaged
		if _, ok := orderSet[d.OrderID]; !ok {
			orderSet[d.OrderID] = struct{}{}
			orderIDs = append(orderIDs, d.OrderID)
		}
	}

	collected, err := c.collectExternallyManaged(ctx, tenantID, orderIDs)
	if err != nil {
		return nil, err
	}
	MergeFlags(flags, collected)

	for _, d := range demands {
		if flags[d.OrderID] || d.OpenQuantity <= 0 {
			continue
		}
		result[d.ProductID] += d.OpenQuantity
	}
	return result, nil
}

// ExternalReserved sums the contributions of every reservation collector.
// Products without contributions report 0.
func (c *ReservedStockCalculator) ExternalReserved(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	result := zeroQuantities(productIDs)
	c.mu.RLock()
	collectors := append([]ExternalReservationCollector(nil), c.reservations...)
	c.mu.RUnlock()
	if len(collectors) == 0 || len(productIDs) == 0 {
		return result, nil
	}

	parts := make([]map[uuid.UUID]int64, len(collectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, collector := range collectors {
		g.Go(func() error {
			part, err := collector.CollectReservations(gctx, tenantID, productIDs)
			if err != nil {
				return fmt.Errorf("reservation collector %s: %w", collector.Name(), err)
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	requested := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, id := range productIDs {
		requested[id] = struct{}{}
	}
	for _, part := range parts {
		for id, qty := range part {
			if _, ok := requested[id]; ok {
				result[id] += qty
			}
		}
	}
	return result, nil
}

// Reserved returns internal and external reservation per product
func (c *ReservedStockCalculator) Reserved(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]ReservedStock, error) {
	internal, err := c.InternalReserved(ctx, tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	external, err := c.ExternalReserved(ctx, tenantID, productIDs)
	if err != nil {
		return nil, err
	}
	result := make(map[uuid.UUID]ReservedStock, len(productIDs))
	for _, id := range productIDs {
		result[id] = ReservedStock{ProductID: id, Internal: internal[id], External: external[id]}
	}
	return result, nil
}

func (c *ReservedStockCalculator) collectExternallyManaged(ctx context.Context, tenantID uuid.UUID, orderIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	merged := make(map[uuid.UUID]bool)
	c.mu.RLock()
	collectors := append([]ExternallyManagedCollector(nil), c.externalManaged...)
	c.mu.RUnlock()
	if len(collectors) == 0 || len(orderIDs) == 0 {
		return merged, nil
	}

	parts := make([]map[uuid.UUID]bool, len(collectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, collector := range collectors {
		g.Go(func() error {
			part, err := collector.CollectExternallyManaged(gctx, tenantID, orderIDs)
			if err != nil {
				return fmt.Errorf("externally-managed collector %s: %w", collector.Name(), err)
			}
			parts[i] = part
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, part := range parts {
		MergeFlags(merged, part)
	}
	return merged, nil
}

func zeroQuantities(productIDs []uuid.UUID) map[uuid.UUID]int64 {
	result := make(map[uuid.UUID]int64, len(productIDs))
	for _, id := range productIDs {
		result[id] = 0
	}
	return result
}
