// Package picking provides the candidate-ordering policies of the picking allocator.
package picking

import (
	"cmp"
	"slices"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/domain/stock"
)

// Strategy names
const (
	NameBinPriority           = "bin_priority"
	NameSmallestQuantityFirst = "smallest_quantity_first"
	NameFIFO                  = "fifo"
)

// BinPriorityPreference picks from bins with the highest priority first,
// then by natural code order
type BinPriorityPreference struct {
	strategy.BaseStrategy
}

// NewBinPriorityPreference creates the bin priority preference
func NewBinPriorityPreference() *BinPriorityPreference {
	return &BinPriorityPreference{
		BaseStrategy: strategy.NewBaseStrategy(
			NameBinPriority,
			strategy.StrategyTypePickingPreference,
			"Highest bin priority first, then bin code",
		),
	}
}

// Order implements stock.PickingPreference
func (s *BinPriorityPreference) Order(candidates []stock.StockCandidate) []stock.StockCandidate {
	return sorted(candidates, func(a, b stock.StockCandidate) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
}

// SmallestQuantityFirstPreference empties nearly-empty bins first to free slots
type SmallestQuantityFirstPreference struct {
	strategy.BaseStrategy
}

// NewSmallestQuantityFirstPreference creates the smallest quantity first preference
func NewSmallestQuantityFirstPreference() *SmallestQuantityFirstPreference {
	return &SmallestQuantityFirstPreference{
		BaseStrategy: strategy.NewBaseStrategy(
			NameSmallestQuantityFirst,
			strategy.StrategyTypePickingPreference,
			"Bin priority first, then the bin holding the smallest quantity",
		),
	}
}

// Order implements stock.PickingPreference
func (s *SmallestQuantityFirstPreference) Order(candidates []stock.StockCandidate) []stock.StockCandidate {
	return sorted(candidates, func(a, b stock.StockCandidate) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.Quantity, b.Quantity)
	})
}

// FIFOPreference picks from the bin whose last inbound movement is oldest.
// Bins without a known inbound time go last.
type FIFOPreference struct {
	strategy.BaseStrategy
}

// NewFIFOPreference creates the FIFO preference
func NewFIFOPreference() *FIFOPreference {
	return &FIFOPreference{
		BaseStrategy: strategy.NewBaseStrategy(
			NameFIFO,
			strategy.StrategyTypePickingPreference,
			"First In First Out - oldest inbound movement first",
		),
	}
}

// Order implements stock.PickingPreference
func (s *FIFOPreference) Order(candidates []stock.StockCandidate) []stock.StockCandidate {
	return sorted(candidates, func(a, b stock.StockCandidate) int {
		switch {
		case a.LastInboundAt == nil && b.LastInboundAt == nil:
			return 0
		case a.LastInboundAt == nil:
			return 1
		case b.LastInboundAt == nil:
			return -1
		}
		return a.LastInboundAt.Compare(*b.LastInboundAt)
	})
}

// sorted returns a sorted copy; ties fall back to natural code order and then location key
func sorted(candidates []stock.StockCandidate, primary func(a, b stock.StockCandidate) int) []stock.StockCandidate {
	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, b stock.StockCandidate) int {
		if c := primary(a, b); c != 0 {
			return c
		}
		if c := stock.CompareCodesNatural(a.Code, b.Code); c != 0 {
			return c
		}
		return cmp.Compare(a.Location.Key(), b.Location.Key())
	})
	return out
}
