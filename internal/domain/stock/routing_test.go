package stock

import (
	"cmp"
	"encoding/json"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeRouting struct {
	strategy.BaseStrategy
}

func (codeRouting) Compare(a, b RoutingStop) int {
	return cmp.Compare(a.Code, b.Code)
}

func TestRouter_Route(t *testing.T) {
	router := NewRouter(codeRouting{BaseStrategy: strategy.NewBaseStrategy("code", strategy.StrategyTypeRouting, "")})

	p1 := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	p2 := uuid.MustParse("00000000-0000-0000-0000-000000000002")
	binA := AtBinLocation(uuid.New())
	binB := AtBinLocation(uuid.New())
	unassigned := AtWarehouse(uuid.New())
	stops := map[LocationReference]RoutingStop{
		binA: {Location: binA, Code: "A"},
		binB: {Location: binB, Code: "B"},
	}
	picks := []ProductPick{
		{ProductID: p2, Quantity: 1, Location: binB},
		{ProductID: p2, Quantity: 4, Location: binA},
		{ProductID: p1, Quantity: 2, Location: binA},
		{ProductID: p1, Quantity: 3, Location: unassigned},
	}
	original := append([]ProductPick(nil), picks...)

	routed := router.Route(picks, stops)

	t.Run("orders by location then product", func(t *testing.T) {
		require.Len(t, routed, 4)
		assert.Equal(t, unassigned, routed[0].Location)
		assert.Equal(t, ProductPick{ProductID: p1, Quantity: 2, Location: binA}, routed[1])
		assert.Equal(t, ProductPick{ProductID: p2, Quantity: 4, Location: binA}, routed[2])
		assert.Equal(t, binB, routed[3].Location)
	})

	t.Run("input is not modified", func(t *testing.T) {
		assert.Equal(t, original, picks)
	})

	t.Run("deterministic for any input permutation", func(t *testing.T) {
		want, err := json.Marshal(routed)
		require.NoError(t, err)
		permutations := [][]ProductPick{
			{picks[3], picks[2], picks[1], picks[0]},
			{picks[1], picks[3], picks[0], picks[2]},
			picks,
		}
		for _, perm := range permutations {
			got, err := json.Marshal(router.Route(perm, stops))
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
		}
	})

	t.Run("route solution in place", func(t *testing.T) {
		solution := &PickingSolution{Picks: append([]ProductPick(nil), picks...)}
		router.RouteSolution(solution, stops)
		assert.Equal(t, routed, solution.Picks)
	})

	t.Run("nil strategy falls back to location key", func(t *testing.T) {
		out := NewRouter(nil).Route(picks, nil)
		for i := 1; i < len(out); i++ {
			assert.LessOrEqual(t, out[i-1].Location.Key(), out[i].Location.Key())
		}
	})
}

func TestStockFlow(t *testing.T) {
	warehouseID := uuid.New()
	b1 := AtBinLocation(uuid.New())
	b2 := AtBinLocation(uuid.New())
	order := AtOrder(uuid.New())
	edges := []FlowEdge{
		{Source: AtUnknown(warehouseID), Destination: b1, Quantity: 10},
		{Source: b1, Destination: b2, Quantity: 4},
		{Source: b1, Destination: order, Quantity: 3},
		{Source: ShopwareMigration(), Destination: b2, Quantity: 7},
		{Source: b2, Destination: order, Quantity: 2},
	}

	t.Run("single location", func(t *testing.T) {
		flow := CalculateStockFlow(b1, edges)
		assert.Equal(t, int64(10), flow.Inbound)
		assert.Equal(t, int64(7), flow.Outbound)
		assert.Equal(t, int64(3), flow.Net())
		assert.Equal(t, FlowTotals{Inbound: 10}, flow.ByType[LocationTypeUnknown])
		assert.Equal(t, FlowTotals{Outbound: 4}, flow.ByType[LocationTypeBinLocation])
		assert.Equal(t, FlowTotals{Outbound: 3}, flow.ByType[LocationTypeOrder])
	})

	t.Run("combined set ignores internal transfers", func(t *testing.T) {
		flow := CombineStockFlows([]LocationReference{b1, b2}, edges)
		assert.Equal(t, int64(17), flow.Inbound)
		assert.Equal(t, int64(5), flow.Outbound)
		_, hasBin := flow.ByType[LocationTypeBinLocation]
		assert.False(t, hasBin)
	})

	t.Run("grouped by location type", func(t *testing.T) {
		grouped := StockFlowByLocationType([]LocationReference{b1, b2, order}, edges)
		require.Len(t, grouped, 2)
		assert.Equal(t, int64(17), grouped[LocationTypeBinLocation].Inbound)
		assert.Equal(t, int64(5), grouped[LocationTypeOrder].Inbound)
		assert.Equal(t, int64(0), grouped[LocationTypeOrder].Outbound)
	})
}
