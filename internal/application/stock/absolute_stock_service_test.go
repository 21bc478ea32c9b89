package stock

import (
	"context"
	"testing"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestAbsoluteStockService() (*AbsoluteStockService, *MockStockRepository, *MockLocationDirectory, *MockStockMover) {
	stocks := new(MockStockRepository)
	directory := new(MockLocationDirectory)
	mover := new(MockStockMover)
	return NewAbsoluteStockService(stocks, directory, mover, nil), stocks, directory, mover
}

// captureMoves records the batch passed to MoveStock
func captureMoves(mover *MockStockMover, tenantID uuid.UUID) *[]stock.StockMovement {
	var booked []stock.StockMovement
	mover.On("MoveStock", mock.Anything, tenantID, mock.Anything).
		Run(func(args mock.Arguments) {
			booked = args.Get(2).([]stock.StockMovement)
		}).
		Return(&MoveStockResult{}, nil)
	return &booked
}

func TestAbsoluteStockService_Apply(t *testing.T) {
	ctx := context.Background()
	tenantID, productID, warehouseID := uuid.New(), uuid.New(), uuid.New()
	bin := stock.BinLocation{ID: uuid.New(), TenantID: tenantID, WarehouseID: warehouseID, Code: "A-01-R01-L01"}

	t.Run("location scope books against the unknown location of its warehouse", func(t *testing.T) {
		svc, stocks, directory, mover := newTestAbsoluteStockService()
		directory.On("FindBinLocations", ctx, tenantID, []uuid.UUID{bin.ID}).Return([]stock.BinLocation{bin}, nil)
		stocks.On("FindQuantity", ctx, tenantID, productID, bin.Reference()).Return(int64Ptr(5), nil)
		booked := captureMoves(mover, tenantID)

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 8, Scope: stock.LocationScope(bin.Reference())},
		}, nil)
		require.NoError(t, err)
		require.Len(t, *booked, 1)
		m := (*booked)[0]
		assert.Equal(t, int64(3), m.Quantity)
		assert.Equal(t, stock.AtUnknown(warehouseID), m.Source)
		assert.Equal(t, bin.Reference(), m.Destination)
	})

	t.Run("warehouse scope reduces the unassigned stock", func(t *testing.T) {
		svc, stocks, _, mover := newTestAbsoluteStockService()
		stocks.On("FindWarehouseQuantity", ctx, tenantID, productID, warehouseID).Return(int64Ptr(10), nil)
		booked := captureMoves(mover, tenantID)

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 4, Scope: stock.WarehouseScope(warehouseID)},
		}, nil)
		require.NoError(t, err)
		require.Len(t, *booked, 1)
		m := (*booked)[0]
		assert.Equal(t, int64(6), m.Quantity)
		assert.Equal(t, stock.AtWarehouse(warehouseID), m.Source)
		assert.Equal(t, stock.AtUnknown(warehouseID), m.Destination)
	})

	t.Run("global scope uses the default warehouse and a missing row counts as zero", func(t *testing.T) {
		svc, stocks, _, mover := newTestAbsoluteStockService()
		svc.SetDefaultWarehouse(warehouseID)
		stocks.On("SumWarehouseQuantities", ctx, tenantID, productID).Return(nil, nil)
		booked := captureMoves(mover, tenantID)
		userID := uuid.New()

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 7, Scope: stock.AbsoluteStockScope{Kind: stock.AbsoluteScopeGlobal}},
		}, &userID)
		require.NoError(t, err)
		require.Len(t, *booked, 1)
		m := (*booked)[0]
		assert.Equal(t, int64(7), m.Quantity)
		assert.Equal(t, stock.ProductTotalStockChange(), m.Source)
		assert.Equal(t, stock.AtWarehouse(warehouseID), m.Destination)
		assert.Equal(t, &userID, m.UserID)
	})

	t.Run("container outside a warehouse books against the total stock change", func(t *testing.T) {
		svc, stocks, directory, mover := newTestAbsoluteStockService()
		container := stock.StockContainer{ID: uuid.New(), TenantID: tenantID}
		directory.On("FindStockContainers", ctx, tenantID, []uuid.UUID{container.ID}).Return([]stock.StockContainer{container}, nil)
		stocks.On("FindQuantity", ctx, tenantID, productID, stock.AtStockContainer(container.ID)).Return(int64Ptr(2), nil)
		booked := captureMoves(mover, tenantID)

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 0, Scope: stock.LocationScope(stock.AtStockContainer(container.ID))},
		}, nil)
		require.NoError(t, err)
		require.Len(t, *booked, 1)
		assert.Equal(t, stock.ProductTotalStockChange(), (*booked)[0].Destination)
	})

	t.Run("matching targets book nothing", func(t *testing.T) {
		svc, stocks, _, mover := newTestAbsoluteStockService()
		stocks.On("FindWarehouseQuantity", ctx, tenantID, productID, warehouseID).Return(int64Ptr(4), nil)

		result, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 4, Scope: stock.WarehouseScope(warehouseID)},
		}, nil)
		require.NoError(t, err)
		assert.Empty(t, result.Movements)
		mover.AssertNotCalled(t, "MoveStock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects overlapping targets", func(t *testing.T) {
		svc, _, directory, mover := newTestAbsoluteStockService()
		directory.On("FindBinLocations", ctx, tenantID, mock.Anything).Return([]stock.BinLocation{bin}, nil)

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 4, Scope: stock.LocationScope(bin.Reference())},
			{ProductID: productID, Quantity: 4, Scope: stock.LocationScope(bin.Reference())},
		}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 10, Scope: stock.LocationScope(bin.Reference())},
			{ProductID: productID, Quantity: 10, Scope: stock.WarehouseScope(warehouseID)},
		}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		mover.AssertNotCalled(t, "MoveStock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same scope for different products is independent", func(t *testing.T) {
		svc, stocks, _, mover := newTestAbsoluteStockService()
		otherProduct := uuid.New()
		stocks.On("FindWarehouseQuantity", ctx, tenantID, productID, warehouseID).Return(int64Ptr(1), nil)
		stocks.On("FindWarehouseQuantity", ctx, tenantID, otherProduct, warehouseID).Return(int64Ptr(1), nil)
		booked := captureMoves(mover, tenantID)

		_, err := svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 3, Scope: stock.WarehouseScope(warehouseID)},
			{ProductID: otherProduct, Quantity: 3, Scope: stock.WarehouseScope(warehouseID)},
		}, nil)
		require.NoError(t, err)
		assert.Len(t, *booked, 2)
	})

	t.Run("rejects invalid targets", func(t *testing.T) {
		svc, _, _, _ := newTestAbsoluteStockService()

		_, err := svc.Apply(ctx, tenantID, nil, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: -1, Scope: stock.WarehouseScope(warehouseID)},
		}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 1, Scope: stock.AbsoluteStockScope{Kind: stock.AbsoluteScopeGlobal}},
		}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)

		_, err = svc.Apply(ctx, tenantID, []AbsoluteStockTarget{
			{ProductID: productID, Quantity: 1, Scope: stock.LocationScope(stock.AtOrder(uuid.New()))},
		}, nil)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})
}
