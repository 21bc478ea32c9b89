package stock

import (
	"time"

	"github.com/google/uuid"
)

// FlowQuery selects ledger movements touching a set of locations
type FlowQuery struct {
	Locations []LocationReference
	ProductID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

// FlowEdge is the summed quantity moved from one location to another
type FlowEdge struct {
	Source      LocationReference
	Destination LocationReference
	Quantity    int64
}

// FlowTotals holds inbound and outbound quantities
type FlowTotals struct {
	Inbound  int64 `json:"inbound"`
	Outbound int64 `json:"outbound"`
}

// Net returns inbound minus outbound
func (t FlowTotals) Net() int64 {
	return t.Inbound - t.Outbound
}

// StockFlow aggregates the movements of a location or a set of locations.
// ByType is keyed by the counterparty location type.
type StockFlow struct {
	FlowTotals
	ByType map[LocationType]FlowTotals `json:"by_type"`
}

func newStockFlow() StockFlow {
	return StockFlow{ByType: make(map[LocationType]FlowTotals)}
}

func (f *StockFlow) addInbound(from LocationType, qty int64) {
	f.Inbound += qty
	t := f.ByType[from]
	t.Inbound += qty
	f.ByType[from] = t
}

func (f *StockFlow) addOutbound(to LocationType, qty int64) {
	f.Outbound += qty
	t := f.ByType[to]
	t.Outbound += qty
	f.ByType[to] = t
}

// CalculateStockFlow computes the flow of one location
func CalculateStockFlow(location LocationReference, edges []FlowEdge) StockFlow {
	return CombineStockFlows([]LocationReference{location}, edges)
}

// CombineStockFlows computes the flow of a set of locations treated as one.
// Transfers between two members of the set are internal and ignored.
func CombineStockFlows(locations []LocationReference, edges []FlowEdge) StockFlow {
	members := make(map[LocationReference]struct{}, len(locations))
	for _, l := range locations {
		members[l] = struct{}{}
	}

	flow := newStockFlow()
	for _, e := range edges {
		_, srcIn := members[e.Source]
		_, dstIn := members[e.Destination]
		switch {
		case srcIn && dstIn:
			continue
		case dstIn:
			flow.addInbound(e.Source.Type(), e.Quantity)
		case srcIn:
			flow.addOutbound(e.Destination.Type(), e.Quantity)
		}
	}
	return flow
}

// StockFlowByLocationType groups the locations by their own type and combines
// the flow of each group
func StockFlowByLocationType(locations []LocationReference, edges []FlowEdge) map[LocationType]StockFlow {
	groups := make(map[LocationType][]LocationReference)
	for _, l := range locations {
		groups[l.Type()] = append(groups[l.Type()], l)
	}
	result := make(map[LocationType]StockFlow, len(groups))
	for t, members := range groups {
		result[t] = CombineStockFlows(members, edges)
	}
	return result
}
