package stock

import (
	"cmp"
	"slices"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
)

// RoutingStop is a location along a picking walk with the layout data a
// routing strategy needs
type RoutingStop struct {
	Location LocationReference
	Code     string
}

// Position returns the parsed bin position of the stop, if its code has one
func (s RoutingStop) Position() (BinPosition, bool) {
	if s.Location.Type() != LocationTypeBinLocation {
		return BinPosition{}, false
	}
	return ParseBinPosition(s.Code)
}

// RoutingStrategy compares two stops by physical walking order
type RoutingStrategy interface {
	strategy.Strategy
	Compare(a, b RoutingStop) int
}

// Router orders picking lists along a physical walk
type Router struct {
	strategy RoutingStrategy
}

// NewRouter creates a router using the given strategy
func NewRouter(s RoutingStrategy) *Router {
	return &Router{strategy: s}
}

// Strategy returns the configured strategy
func (r *Router) Strategy() RoutingStrategy {
	return r.strategy
}

// Route returns the picks in walking order. Distinct locations are ranked once
// with the strategy (falling back to the location key), then picks are ordered by
// rank, product id, quantity and location key, which is a total order over
// distinct picks. The input is not modified.
func (r *Router) Route(picks []ProductPick, stops map[LocationReference]RoutingStop) []ProductPick {
	distinct := make([]RoutingStop, 0, len(stops))
	seen := make(map[LocationReference]struct{}, len(picks))
	for _, p := range picks {
		if _, ok := seen[p.Location]; ok {
			continue
		}
		seen[p.Location] = struct{}{}
		stop, ok := stops[p.Location]
		if !ok {
			stop = RoutingStop{Location: p.Location}
		}
		distinct = append(distinct, stop)
	}

	slices.SortFunc(distinct, func(a, b RoutingStop) int {
		if r.strategy != nil {
			if c := r.strategy.Compare(a, b); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Location.Key(), b.Location.Key())
	})
	rank := make(map[LocationReference]int, len(distinct))
	for i, stop := range distinct {
		rank[stop.Location] = i
	}

	routed := slices.Clone(picks)
	slices.SortFunc(routed, func(a, b ProductPick) int {
		if c := cmp.Compare(rank[a.Location], rank[b.Location]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ProductID.String(), b.ProductID.String()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Quantity, b.Quantity); c != 0 {
			return c
		}
		return cmp.Compare(a.Location.Key(), b.Location.Key())
	})
	return routed
}

// RouteSolution routes the picks of a solution in place
func (r *Router) RouteSolution(solution *PickingSolution, stops map[LocationReference]RoutingStop) {
	if solution.IsEmpty() {
		return
	}
	solution.Picks = r.Route(solution.Picks, stops)
}
