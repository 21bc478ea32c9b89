package stock

import (
	"errors"
	"slices"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/shared/strategy"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeOrderPreference struct {
	strategy.BaseStrategy
}

func newCodeOrderPreference() *codeOrderPreference {
	return &codeOrderPreference{
		BaseStrategy: strategy.NewBaseStrategy("code_order", strategy.StrategyTypePickingPreference, "Bins by code"),
	}
}

func (p *codeOrderPreference) Order(candidates []StockCandidate) []StockCandidate {
	out := slices.Clone(candidates)
	slices.SortFunc(out, func(a, b StockCandidate) int { return CompareCodesNatural(a.Code, b.Code) })
	return out
}

type allocatorFixture struct {
	warehouseID uuid.UUID
	productID   uuid.UUID
	b1, b2      LocationReference
	candidates  map[uuid.UUID][]StockCandidate
}

func newAllocatorFixture() allocatorFixture {
	f := allocatorFixture{
		warehouseID: uuid.New(),
		productID:   uuid.New(),
		b1:          AtBinLocation(uuid.New()),
		b2:          AtBinLocation(uuid.New()),
	}
	f.candidates = map[uuid.UUID][]StockCandidate{
		f.productID: {
			{Location: f.b2, Quantity: 3, Code: "B2"},
			{Location: f.b1, Quantity: 5, Code: "B1"},
		},
	}
	return f
}

func TestPickingAllocator_Allocate(t *testing.T) {
	allocator := NewPickingAllocator(newCodeOrderPreference())

	t.Run("six units come from B1 then B2", func(t *testing.T) {
		f := newAllocatorFixture()
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 6}, SourceArea: WarehouseArea(f.warehouseID)}

		solution, err := allocator.Allocate(req, f.candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, []ProductPick{
			{ProductID: f.productID, Quantity: 5, Location: f.b1},
			{ProductID: f.productID, Quantity: 1, Location: f.b2},
		}, solution.Picks)
		assert.Equal(t, int64(6), solution.QuantityByProduct()[f.productID])
	})

	t.Run("exactly all stock", func(t *testing.T) {
		f := newAllocatorFixture()
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 8}, SourceArea: WarehouseArea(f.warehouseID)}

		solution, err := allocator.Allocate(req, f.candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(8), solution.QuantityByProduct()[f.productID])
		assert.Len(t, solution.Picks, 2)
	})

	t.Run("nine units is a shortage of one", func(t *testing.T) {
		f := newAllocatorFixture()
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 9}, SourceArea: WarehouseArea(f.warehouseID)}

		solution, err := allocator.Allocate(req, f.candidates, nil)
		assert.Nil(t, solution)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInsufficientStock))

		var shortage *ShortageError
		require.True(t, errors.As(err, &shortage))
		require.Len(t, shortage.Shortages, 1)
		assert.Equal(t, ProductShortage{ProductID: f.productID, Requested: 9, Available: 8, Unmet: 1}, shortage.Shortages[0])
		assert.Equal(t, int64(1), shortage.Unmet(f.productID))
		assert.Equal(t, int64(8), shortage.PartialSolution.QuantityByProduct()[f.productID])

		de := shortage.DomainError()
		assert.Equal(t, "INSUFFICIENT_STOCK", de.Code)
		assert.NotNil(t, de.Details["shortages"])
	})

	t.Run("unassigned warehouse stock is used after bins", func(t *testing.T) {
		f := newAllocatorFixture()
		f.candidates[f.productID] = append(f.candidates[f.productID], StockCandidate{Location: AtWarehouse(f.warehouseID), Quantity: 4})
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 10}, SourceArea: WarehouseArea(f.warehouseID)}

		solution, err := allocator.Allocate(req, f.candidates, nil)
		require.NoError(t, err)
		require.Len(t, solution.Picks, 3)
		assert.Equal(t, ProductPick{ProductID: f.productID, Quantity: 2, Location: AtWarehouse(f.warehouseID)}, solution.Picks[2])
	})

	t.Run("warehouse without bin stock allocates from the warehouse aggregate", func(t *testing.T) {
		f := newAllocatorFixture()
		f.candidates[f.productID] = []StockCandidate{{Location: AtWarehouse(f.warehouseID), Quantity: 7}}
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 7}, SourceArea: WarehouseArea(f.warehouseID)}

		solution, err := allocator.Allocate(req, f.candidates, nil)
		require.NoError(t, err)
		assert.Equal(t, []ProductPick{{ProductID: f.productID, Quantity: 7, Location: AtWarehouse(f.warehouseID)}}, solution.Picks)
	})

	t.Run("non-positive and unbounded candidates are ignored", func(t *testing.T) {
		f := newAllocatorFixture()
		f.candidates[f.productID] = []StockCandidate{
			{Location: f.b1, Quantity: -2, Code: "B1"},
			{Location: AtUnknown(f.warehouseID), Quantity: 100},
			{Location: f.b2, Quantity: 3, Code: "B2"},
		}
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 4}, SourceArea: WarehouseArea(f.warehouseID)}

		_, err := allocator.Allocate(req, f.candidates, nil)
		var shortage *ShortageError
		require.True(t, errors.As(err, &shortage))
		assert.Equal(t, int64(1), shortage.Unmet(f.productID))
	})

	t.Run("limit caps the allocatable total", func(t *testing.T) {
		f := newAllocatorFixture()
		req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 6}, SourceArea: WarehouseArea(f.warehouseID)}

		_, err := allocator.Allocate(req, f.candidates, map[uuid.UUID]int64{f.productID: 5})
		var shortage *ShortageError
		require.True(t, errors.As(err, &shortage))
		assert.Equal(t, ProductShortage{ProductID: f.productID, Requested: 6, Available: 5, Unmet: 1}, shortage.Shortages[0])
		assert.Equal(t, int64(5), shortage.PartialSolution.QuantityByProduct()[f.productID])
	})

	t.Run("shortages of several products are reported together", func(t *testing.T) {
		f := newAllocatorFixture()
		missing := uuid.New()
		req := PickingRequest{
			ProductQuantities: map[uuid.UUID]int64{f.productID: 2, missing: 1},
			SourceArea:        WarehouseArea(f.warehouseID),
		}

		_, err := allocator.Allocate(req, f.candidates, nil)
		var shortage *ShortageError
		require.True(t, errors.As(err, &shortage))
		require.Len(t, shortage.Shortages, 1)
		assert.Equal(t, missing, shortage.Shortages[0].ProductID)
		assert.Equal(t, int64(2), shortage.PartialSolution.QuantityByProduct()[f.productID])
	})

	t.Run("allocated quantities never exceed stock per location", func(t *testing.T) {
		f := newAllocatorFixture()
		for qty := int64(1); qty <= 8; qty++ {
			req := PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: qty}, SourceArea: WarehouseArea(f.warehouseID)}
			solution, err := allocator.Allocate(req, f.candidates, nil)
			require.NoError(t, err)
			assert.Equal(t, qty, solution.QuantityByProduct()[f.productID])
			for _, pick := range solution.Picks {
				switch pick.Location {
				case f.b1:
					assert.LessOrEqual(t, pick.Quantity, int64(5))
				case f.b2:
					assert.LessOrEqual(t, pick.Quantity, int64(3))
				}
			}
		}
	})

	t.Run("invalid requests", func(t *testing.T) {
		f := newAllocatorFixture()
		_, err := allocator.Allocate(PickingRequest{SourceArea: WarehouseArea(f.warehouseID)}, f.candidates, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))

		_, err = allocator.Allocate(PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 0}, SourceArea: WarehouseArea(f.warehouseID)}, f.candidates, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))

		_, err = allocator.Allocate(PickingRequest{ProductQuantities: map[uuid.UUID]int64{f.productID: 1}, SourceArea: LocationArea(AtOrder(uuid.New()))}, f.candidates, nil)
		assert.True(t, errors.Is(err, shared.ErrInvalidInput))
	})
}

func TestPickingSolution_CreateStockMovementsWithDestination(t *testing.T) {
	tenantID := uuid.New()
	productID := uuid.New()
	b1 := AtBinLocation(uuid.New())
	b2 := AtBinLocation(uuid.New())
	orderID := uuid.New()
	solution := &PickingSolution{Picks: []ProductPick{
		{ProductID: productID, Quantity: 5, Location: b1},
		{ProductID: productID, Quantity: 1, Location: b2},
	}}

	t.Run("one movement per pick", func(t *testing.T) {
		userID := uuid.New()
		movements, err := solution.CreateStockMovementsWithDestination(tenantID, AtOrder(orderID), WithUser(userID), WithComment("pick"))
		require.NoError(t, err)
		require.Len(t, movements, 2)
		assert.NoError(t, ValidateBatch(movements))
		for i, m := range movements {
			assert.Equal(t, solution.Picks[i].Location, m.Source)
			assert.Equal(t, AtOrder(orderID), m.Destination)
			assert.Equal(t, solution.Picks[i].Quantity, m.Quantity)
			assert.Equal(t, &userID, m.UserID)
			assert.Equal(t, "pick", m.Comment)
		}
	})

	t.Run("seeded ids are deterministic", func(t *testing.T) {
		seed := uuid.New()
		first, err := solution.CreateStockMovementsWithDestination(tenantID, AtOrder(orderID), WithIDSeed(seed))
		require.NoError(t, err)
		second, err := solution.CreateStockMovementsWithDestination(tenantID, AtOrder(orderID), WithIDSeed(seed))
		require.NoError(t, err)
		assert.Equal(t, MovementIDs(first), MovementIDs(second))
		assert.NotEqual(t, first[0].ID, first[1].ID)
	})

	t.Run("destination equal to a pick location is rejected", func(t *testing.T) {
		_, err := solution.CreateStockMovementsWithDestination(tenantID, b2)
		var de *shared.DomainError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, CodeInvalidStockMovement, de.Code)
	})

	t.Run("empty solution", func(t *testing.T) {
		_, err := (&PickingSolution{}).CreateStockMovementsWithDestination(tenantID, AtOrder(orderID))
		assert.Error(t, err)
	})
}
