package stock

import (
	"time"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
)

// StockCandidate is stock at one location that may be allocated
type StockCandidate struct {
	Location      LocationReference
	Quantity      int64
	Code          string
	Priority      int
	LastInboundAt *time.Time
}

// PickingPreference orders bin candidates before greedy allocation
type PickingPreference interface {
	strategy.Strategy
	// Order returns the candidates in the order they should be consumed.
	// Implementations must not modify the input slice.
	Order(candidates []StockCandidate) []StockCandidate
}

// PickingAllocator allocates requested quantities greedily over ordered candidates
type PickingAllocator struct {
	preference PickingPreference
}

// NewPickingAllocator creates an allocator using the given preference
func NewPickingAllocator(preference PickingPreference) *PickingAllocator {
	return &PickingAllocator{preference: preference}
}

// Preference returns the configured preference
func (a *PickingAllocator) Preference() PickingPreference {
	return a.preference
}

// Allocate computes a picking solution. candidates holds the stock per product
// inside the source area; limits optionally caps the total allocatable quantity
// of a product (e.g. after reserved stock is protected).
//
// Bin candidates are ordered by the preference; any other physical candidate
// (the unassigned stock of a warehouse) is consumed after all bins.
// When any product cannot be fully allocated a *ShortageError is returned carrying
// the partial solution.
func (a *PickingAllocator) Allocate(req PickingRequest, candidates map[uuid.UUID][]StockCandidate, limits map[uuid.UUID]int64) (*PickingSolution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	solution := &PickingSolution{}
	var shortages []ProductShortage
	for _, productID := range req.ProductIDs() {
		requested := req.ProductQuantities[productID]
		ordered := a.order(candidates[productID])

		available := int64(0)
		for _, c := range ordered {
			available += c.Quantity
		}
		if limit, ok := limits[productID]; ok && limit < available {
			available = max(limit, 0)
		}

		remaining := min(requested, available)
		for _, c := range ordered {
			if remaining == 0 {
				break
			}
			take := min(c.Quantity, remaining)
			solution.Picks = append(solution.Picks, ProductPick{ProductID: productID, Quantity: take, Location: c.Location})
			remaining -= take
		}

		if available < requested {
			shortages = append(shortages, ProductShortage{
				ProductID: productID,
				Requested: requested,
				Available: available,
				Unmet:     requested - available,
			})
		}
	}

	if len(shortages) > 0 {
		return nil, &ShortageError{Shortages: shortages, PartialSolution: solution}
	}
	return solution, nil
}

func (a *PickingAllocator) order(candidates []StockCandidate) []StockCandidate {
	var bins, rest []StockCandidate
	for _, c := range candidates {
		if c.Quantity <= 0 || !c.Location.IsPhysical() {
			continue
		}
		if c.Location.Type() == LocationTypeBinLocation {
			bins = append(bins, c)
		} else {
			rest = append(rest, c)
		}
	}
	if a.preference != nil && len(bins) > 1 {
		bins = a.preference.Order(bins)
	}
	return append(bins, rest...)
}
