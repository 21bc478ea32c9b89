// Package routing provides the walking-order policies for picking lists.
package routing

import (
	"cmp"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/erp/stockledger/internal/domain/stock"
)

// Strategy names
const (
	NameBinPosition = "bin_position"
	NameBinCode     = "bin_code"
)

// BinPositionStrategy walks zone by zone and aisle by aisle. Racks are walked up
// the even aisles and down the odd ones, so consecutive aisles form an S-shape.
// Stops without a parsable position follow in natural code order; non-bin stops come last.
type BinPositionStrategy struct {
	strategy.BaseStrategy
}

// NewBinPositionStrategy creates the S-shape routing strategy
func NewBinPositionStrategy() *BinPositionStrategy {
	return &BinPositionStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			NameBinPosition,
			strategy.StrategyTypeRouting,
			"S-shape walk by zone, aisle, rack and level parsed from bin codes",
		),
	}
}

// Compare implements stock.RoutingStrategy
func (s *BinPositionStrategy) Compare(a, b stock.RoutingStop) int {
	if c := cmp.Compare(stopClass(a), stopClass(b)); c != 0 {
		return c
	}
	pa, okA := a.Position()
	pb, okB := b.Position()
	if !okA || !okB {
		return stock.CompareCodesNatural(a.Code, b.Code)
	}
	if c := cmp.Compare(pa.Zone, pb.Zone); c != 0 {
		return c
	}
	if c := cmp.Compare(pa.Aisle, pb.Aisle); c != 0 {
		return c
	}
	rack := cmp.Compare(pa.Rack, pb.Rack)
	if pa.Aisle%2 == 1 {
		rack = -rack
	}
	if rack != 0 {
		return rack
	}
	return cmp.Compare(pa.Level, pb.Level)
}

// BinCodeStrategy walks bins in natural code order
type BinCodeStrategy struct {
	strategy.BaseStrategy
}

// NewBinCodeStrategy creates the code order routing strategy
func NewBinCodeStrategy() *BinCodeStrategy {
	return &BinCodeStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			NameBinCode,
			strategy.StrategyTypeRouting,
			"Natural order of bin codes",
		),
	}
}

// Compare implements stock.RoutingStrategy
func (s *BinCodeStrategy) Compare(a, b stock.RoutingStop) int {
	if c := cmp.Compare(stopClass(a), stopClass(b)); c != 0 {
		return c
	}
	return stock.CompareCodesNatural(a.Code, b.Code)
}

// stopClass puts positioned bins first, other bins next and everything else last
func stopClass(s stock.RoutingStop) int {
	if s.Location.Type() != stock.LocationTypeBinLocation {
		return 2
	}
	if _, ok := s.Position(); ok {
		return 0
	}
	return 1
}
