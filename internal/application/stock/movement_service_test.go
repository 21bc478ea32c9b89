package stock

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type movementFixture struct {
	tenantID    uuid.UUID
	productID   uuid.UUID
	warehouseID uuid.UUID
	bin         stock.BinLocation
}

func newMovementFixture() movementFixture {
	tenantID := uuid.New()
	warehouseID := uuid.New()
	return movementFixture{
		tenantID:    tenantID,
		productID:   uuid.New(),
		warehouseID: warehouseID,
		bin:         stock.BinLocation{ID: uuid.New(), TenantID: tenantID, WarehouseID: warehouseID, Code: "A-01-R01-L01"},
	}
}

func (f movementFixture) movement(qty int64, source, destination stock.LocationReference) stock.StockMovement {
	return stock.StockMovement{
		ID:          uuid.New(),
		TenantID:    f.tenantID,
		ProductID:   f.productID,
		Quantity:    qty,
		Source:      source,
		Destination: destination,
	}
}

func newTestStockMovementService() (*StockMovementService, *MockTransactionScope, *MockStockMovementRepository, *MockStockRepository, *MockLocationDirectory) {
	scope, movements, stocks, directory := newMockTransactionScope()
	return NewStockMovementService(scope, movements, nil), scope, movements, stocks, directory
}

func TestStockMovementService_MoveStock(t *testing.T) {
	ctx := context.Background()

	t.Run("records batch and updates aggregates", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, stocks, directory := newTestStockMovementService()
		publisher := NewMockEventPublisher()
		svc.SetEventPublisher(publisher)

		batch := []stock.StockMovement{f.movement(5, stock.AtUnknown(f.warehouseID), f.bin.Reference())}

		movements.On("FindExistingIDs", ctx, f.tenantID, []uuid.UUID{batch[0].ID}).Return([]uuid.UUID{}, nil)
		directory.On("FindBinLocations", ctx, f.tenantID, []uuid.UUID{f.bin.ID}).Return([]stock.BinLocation{f.bin}, nil)
		directory.On("ExistsWarehouse", ctx, f.tenantID, f.warehouseID).Return(true, nil).Once()
		movements.On("Append", ctx, mock.AnythingOfType("[]stock.StockMovement")).Return(nil)
		stocks.On("ApplyDeltas", ctx, f.tenantID, mock.MatchedBy(func(deltas []stock.StockDelta) bool {
			byKey := make(map[stock.LocationReference]int64)
			for _, d := range deltas {
				byKey[d.Location] = d.Delta
			}
			return len(deltas) == 2 && byKey[f.bin.Reference()] == 5 && byKey[stock.AtUnknown(f.warehouseID)] == -5
		})).Return(nil)
		stocks.On("ApplyWarehouseDeltas", ctx, f.tenantID, []stock.WarehouseStockDelta{{
			WarehouseStockKey: stock.WarehouseStockKey{ProductID: f.productID, WarehouseID: f.warehouseID},
			Delta:             5,
		}}).Return(nil)

		result, err := svc.MoveStock(ctx, f.tenantID, batch)
		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Empty(t, result.NegativeStocks)
		require.Len(t, result.Movements, 1)
		assert.False(t, result.Movements[0].CreatedAt.IsZero())

		events := publisher.GetEventsByType(stock.EventTypeStockMovementsRecorded)
		require.Len(t, events, 1)
		recorded := events[0].(*stock.StockMovementsRecordedEvent)
		assert.Equal(t, []uuid.UUID{f.productID}, recorded.ProductIDs)

		movements.AssertExpectations(t)
		stocks.AssertExpectations(t)
		directory.AssertExpectations(t)
	})

	t.Run("fills tenant and keeps given timestamps", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, stocks, directory := newTestStockMovementService()
		createdAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
		m := f.movement(2, stock.AtWarehouse(f.warehouseID), stock.AtOrder(uuid.New()))
		m.TenantID = uuid.Nil
		m.CreatedAt = createdAt

		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{}, nil)
		directory.On("ExistsWarehouse", ctx, f.tenantID, f.warehouseID).Return(true, nil)
		movements.On("Append", ctx, mock.MatchedBy(func(batch []stock.StockMovement) bool {
			return batch[0].TenantID == f.tenantID && batch[0].CreatedAt.Equal(createdAt)
		})).Return(nil)
		stocks.On("ApplyDeltas", ctx, f.tenantID, mock.Anything).Return(nil)
		stocks.On("ApplyWarehouseDeltas", ctx, f.tenantID, mock.Anything).Return(nil)
		stocks.On("FindQuantity", ctx, f.tenantID, f.productID, stock.AtWarehouse(f.warehouseID)).Return(int64Ptr(8), nil)

		result, err := svc.MoveStock(ctx, f.tenantID, []stock.StockMovement{m})
		require.NoError(t, err)
		assert.Equal(t, f.tenantID, result.Movements[0].TenantID)
		assert.Empty(t, result.NegativeStocks)
		movements.AssertExpectations(t)
	})

	t.Run("replayed batch is a no-op", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, stocks, _ := newTestStockMovementService()
		publisher := NewMockEventPublisher()
		svc.SetEventPublisher(publisher)

		batch := []stock.StockMovement{
			f.movement(1, stock.AtUnknown(f.warehouseID), f.bin.Reference()),
			f.movement(2, stock.AtUnknown(f.warehouseID), f.bin.Reference()),
		}
		ids := stock.MovementIDs(batch)
		movements.On("FindExistingIDs", ctx, f.tenantID, ids).Return(ids, nil)

		result, err := svc.MoveStock(ctx, f.tenantID, batch)
		require.NoError(t, err)
		assert.True(t, result.Replayed)
		assert.Empty(t, publisher.GetEvents())
		movements.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		stocks.AssertNotCalled(t, "ApplyDeltas", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("partially recorded batch is rejected", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, _, _ := newTestStockMovementService()

		batch := []stock.StockMovement{
			f.movement(1, stock.AtUnknown(f.warehouseID), f.bin.Reference()),
			f.movement(2, stock.AtUnknown(f.warehouseID), f.bin.Reference()),
		}
		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{batch[1].ID}, nil)

		result, err := svc.MoveStock(ctx, f.tenantID, batch)
		assert.Nil(t, result)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodePartialMovementReplay, domainErr.Code)
		assert.Equal(t, []string{batch[1].ID.String()}, domainErr.Details["existing_ids"])
		movements.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("invalid batch never opens a transaction", func(t *testing.T) {
		f := newMovementFixture()
		svc, scope, _, _, _ := newTestStockMovementService()

		_, err := svc.MoveStock(ctx, f.tenantID, []stock.StockMovement{f.movement(0, stock.AtUnknown(f.warehouseID), f.bin.Reference())})
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodeInvalidStockMovement, domainErr.Code)
		assert.Equal(t, 0, scope.calls)
	})

	t.Run("empty batch is invalid", func(t *testing.T) {
		svc, _, _, _, _ := newTestStockMovementService()
		_, err := svc.MoveStock(ctx, uuid.New(), nil)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodeInvalidStockMovement, domainErr.Code)
	})

	t.Run("movement of another tenant is invalid", func(t *testing.T) {
		f := newMovementFixture()
		svc, scope, _, _, _ := newTestStockMovementService()
		m := f.movement(1, stock.AtUnknown(f.warehouseID), f.bin.Reference())
		m.TenantID = uuid.New()

		_, err := svc.MoveStock(ctx, f.tenantID, []stock.StockMovement{m})
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodeInvalidStockMovement, domainErr.Code)
		assert.Equal(t, 0, scope.calls)
	})

	t.Run("unknown bin location is rejected", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, _, directory := newTestStockMovementService()
		batch := []stock.StockMovement{f.movement(5, stock.ShopwareMigration(), f.bin.Reference())}

		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{}, nil)
		directory.On("FindBinLocations", ctx, f.tenantID, []uuid.UUID{f.bin.ID}).Return([]stock.BinLocation{}, nil)

		_, err := svc.MoveStock(ctx, f.tenantID, batch)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodeInvalidStockMovement, domainErr.Code)
		assert.Contains(t, domainErr.Message, "unknown bin location")
		movements.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("unknown warehouse is rejected", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, _, directory := newTestStockMovementService()
		batch := []stock.StockMovement{f.movement(5, stock.ProductTotalStockChange(), stock.AtWarehouse(f.warehouseID))}

		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{}, nil)
		directory.On("ExistsWarehouse", ctx, f.tenantID, f.warehouseID).Return(false, nil)

		_, err := svc.MoveStock(ctx, f.tenantID, batch)
		var domainErr *shared.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, stock.CodeInvalidStockMovement, domainErr.Code)
	})

	t.Run("reports physical stock that went negative", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, stocks, directory := newTestStockMovementService()
		orderID := uuid.New()
		batch := []stock.StockMovement{f.movement(3, f.bin.Reference(), stock.AtOrder(orderID))}

		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{}, nil)
		directory.On("FindBinLocations", ctx, f.tenantID, []uuid.UUID{f.bin.ID}).Return([]stock.BinLocation{f.bin}, nil)
		movements.On("Append", ctx, mock.Anything).Return(nil)
		stocks.On("ApplyDeltas", ctx, f.tenantID, mock.Anything).Return(nil)
		stocks.On("ApplyWarehouseDeltas", ctx, f.tenantID, mock.Anything).Return(nil)
		stocks.On("FindQuantity", ctx, f.tenantID, f.productID, f.bin.Reference()).Return(int64Ptr(-1), nil)

		result, err := svc.MoveStock(ctx, f.tenantID, batch)
		require.NoError(t, err)
		require.Len(t, result.NegativeStocks, 1)
		assert.Equal(t, f.bin.Reference(), result.NegativeStocks[0].Location)
		assert.Equal(t, int64(-1), result.NegativeStocks[0].Quantity)
		stocks.AssertNotCalled(t, "FindQuantity", ctx, f.tenantID, f.productID, stock.AtOrder(orderID))
	})

	t.Run("exhausted retries surface a concurrency conflict", func(t *testing.T) {
		f := newMovementFixture()
		svc, scope, _, _, _ := newTestStockMovementService()
		scope.err = fmt.Errorf("%w: stock transaction failed after 4 attempts: deadlock", shared.ErrConcurrencyConflict)
		publisher := NewMockEventPublisher()
		svc.SetEventPublisher(publisher)

		result, err := svc.MoveStock(ctx, f.tenantID, []stock.StockMovement{f.movement(1, stock.AtUnknown(f.warehouseID), f.bin.Reference())})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Empty(t, publisher.GetEvents())
	})

	t.Run("aggregate failure aborts the batch", func(t *testing.T) {
		f := newMovementFixture()
		svc, _, movements, stocks, directory := newTestStockMovementService()
		publisher := NewMockEventPublisher()
		svc.SetEventPublisher(publisher)

		movements.On("FindExistingIDs", ctx, f.tenantID, mock.Anything).Return([]uuid.UUID{}, nil)
		directory.On("FindBinLocations", ctx, f.tenantID, mock.Anything).Return([]stock.BinLocation{f.bin}, nil)
		directory.On("ExistsWarehouse", ctx, f.tenantID, f.warehouseID).Return(true, nil)
		movements.On("Append", ctx, mock.Anything).Return(nil)
		stocks.On("ApplyDeltas", ctx, f.tenantID, mock.Anything).Return(errors.New("disk full"))

		_, err := svc.MoveStock(ctx, f.tenantID, []stock.StockMovement{f.movement(1, stock.AtUnknown(f.warehouseID), f.bin.Reference())})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "apply stock deltas")
		assert.Empty(t, publisher.GetEvents())
	})
}

func TestStockMovementService_GetMovement(t *testing.T) {
	ctx := context.Background()
	svc, _, movements, _, _ := newTestStockMovementService()
	tenantID, id := uuid.New(), uuid.New()

	expected := &stock.StockMovement{ID: id, TenantID: tenantID}
	movements.On("FindByID", ctx, tenantID, id).Return(expected, nil)
	movements.On("FindByID", ctx, tenantID, mock.Anything).Return(nil, shared.ErrNotFound)

	got, err := svc.GetMovement(ctx, tenantID, id)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	_, err = svc.GetMovement(ctx, tenantID, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStockMovementService_ListMovements(t *testing.T) {
	ctx := context.Background()
	svc, _, movements, _, _ := newTestStockMovementService()
	tenantID, productID := uuid.New(), uuid.New()
	filter := stock.MovementFilter{Page: 2, PageSize: 10}

	rows := []stock.StockMovement{{ID: uuid.New()}, {ID: uuid.New()}}
	movements.On("FindByProduct", ctx, tenantID, productID, filter).Return(rows, int64(12), nil)

	got, total, err := svc.ListMovements(ctx, tenantID, productID, filter)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(12), total)
}
