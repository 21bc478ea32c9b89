package stock

import (
	"context"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{
		events: make([]shared.DomainEvent, 0),
	}
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) GetEvents() []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, len(m.events))
	copy(result, m.events)
	return result
}

func (m *MockEventPublisher) GetEventsByType(eventType string) []shared.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]shared.DomainEvent, 0)
	for _, e := range m.events {
		if e.EventType() == eventType {
			result = append(result, e)
		}
	}
	return result
}

// MockStockMovementRepository is a mock implementation of stock.StockMovementRepository
type MockStockMovementRepository struct {
	mock.Mock
}

func (m *MockStockMovementRepository) FindExistingIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockStockMovementRepository) Append(ctx context.Context, movements []stock.StockMovement) error {
	args := m.Called(ctx, movements)
	return args.Error(0)
}

func (m *MockStockMovementRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*stock.StockMovement, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stock.StockMovement), args.Error(1)
}

func (m *MockStockMovementRepository) FindByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockMovement, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stock.StockMovement), args.Error(1)
}

func (m *MockStockMovementRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID, filter stock.MovementFilter) ([]stock.StockMovement, int64, error) {
	args := m.Called(ctx, tenantID, productID, filter)
	return args.Get(0).([]stock.StockMovement), args.Get(1).(int64), args.Error(2)
}

func (m *MockStockMovementRepository) Replay(ctx context.Context, tenantID uuid.UUID, batchSize int, fn func([]stock.StockMovement) error) error {
	args := m.Called(ctx, tenantID, batchSize, fn)
	if batches, ok := args.Get(0).([][]stock.StockMovement); ok {
		for _, b := range batches {
			if err := fn(b); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

func (m *MockStockMovementRepository) FlowEdges(ctx context.Context, tenantID uuid.UUID, query stock.FlowQuery) ([]stock.FlowEdge, error) {
	args := m.Called(ctx, tenantID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stock.FlowEdge), args.Error(1)
}

func (m *MockStockMovementRepository) Tenants(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

// MockStockRepository is a mock implementation of stock.StockRepository
type MockStockRepository struct {
	mock.Mock
}

func (m *MockStockRepository) ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []stock.StockDelta) error {
	args := m.Called(ctx, tenantID, deltas)
	return args.Error(0)
}

func (m *MockStockRepository) ApplyWarehouseDeltas(ctx context.Context, tenantID uuid.UUID, deltas []stock.WarehouseStockDelta) error {
	args := m.Called(ctx, tenantID, deltas)
	return args.Error(0)
}

func (m *MockStockRepository) FindQuantity(ctx context.Context, tenantID, productID uuid.UUID, location stock.LocationReference) (*int64, error) {
	args := m.Called(ctx, tenantID, productID, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*int64), args.Error(1)
}

func (m *MockStockRepository) FindWarehouseQuantity(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*int64, error) {
	args := m.Called(ctx, tenantID, productID, warehouseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*int64), args.Error(1)
}

func (m *MockStockRepository) SumWarehouseQuantities(ctx context.Context, tenantID, productID uuid.UUID) (*int64, error) {
	args := m.Called(ctx, tenantID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*int64), args.Error(1)
}

func (m *MockStockRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.Stock, error) {
	args := m.Called(ctx, tenantID, productID)
	return args.Get(0).([]stock.Stock), args.Error(1)
}

func (m *MockStockRepository) FindWarehouseStocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.WarehouseStock, error) {
	args := m.Called(ctx, tenantID, productID)
	return args.Get(0).([]stock.WarehouseStock), args.Error(1)
}

func (m *MockStockRepository) FindInWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]stock.Stock, error) {
	args := m.Called(ctx, tenantID, warehouseID, productIDs)
	return args.Get(0).([]stock.Stock), args.Error(1)
}

func (m *MockStockRepository) FindAtLocation(ctx context.Context, tenantID uuid.UUID, location stock.LocationReference, productIDs []uuid.UUID) ([]stock.Stock, error) {
	args := m.Called(ctx, tenantID, location, productIDs)
	return args.Get(0).([]stock.Stock), args.Error(1)
}

func (m *MockStockRepository) FindAll(ctx context.Context, tenantID uuid.UUID) ([]stock.Stock, []stock.WarehouseStock, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).([]stock.Stock), args.Get(1).([]stock.WarehouseStock), args.Error(2)
}

func (m *MockStockRepository) ReplaceAll(ctx context.Context, tenantID uuid.UUID, stocks []stock.Stock, warehouseStocks []stock.WarehouseStock) error {
	args := m.Called(ctx, tenantID, stocks, warehouseStocks)
	return args.Error(0)
}

// MockLocationDirectory is a mock implementation of stock.LocationDirectory
type MockLocationDirectory struct {
	mock.Mock
}

func (m *MockLocationDirectory) FindBinLocations(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.BinLocation, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).([]stock.BinLocation), args.Error(1)
}

func (m *MockLocationDirectory) FindBinLocationsByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]stock.BinLocation, error) {
	args := m.Called(ctx, tenantID, warehouseID)
	return args.Get(0).([]stock.BinLocation), args.Error(1)
}

func (m *MockLocationDirectory) FindStockContainers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockContainer, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).([]stock.StockContainer), args.Error(1)
}

func (m *MockLocationDirectory) ExistsWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) (bool, error) {
	args := m.Called(ctx, tenantID, warehouseID)
	return args.Bool(0), args.Error(1)
}

// MockTransactionScope runs the callback against the mock repositories
type MockTransactionScope struct {
	movements *MockStockMovementRepository
	stocks    *MockStockRepository
	directory *MockLocationDirectory
	calls     int
	// serializable counts the calls made through ExecuteSerializable
	serializable int
	// err is returned instead of running the callback
	err error
}

func (s *MockTransactionScope) Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	return fn(s)
}

func (s *MockTransactionScope) ExecuteSerializable(ctx context.Context, fn func(repos TransactionalRepositories) error) error {
	s.serializable++
	return s.Execute(ctx, fn)
}

func (s *MockTransactionScope) MovementRepo() stock.StockMovementRepository { return s.movements }
func (s *MockTransactionScope) StockRepo() stock.StockRepository { return s.stocks }
func (s *MockTransactionScope) LocationDirectory() stock.LocationDirectory { return s.directory }

// MockStockMover records the batches passed to MoveStock
type MockStockMover struct {
	mock.Mock
}

func (m *MockStockMover) MoveStock(ctx context.Context, tenantID uuid.UUID, movements []stock.StockMovement) (*MoveStockResult, error) {
	args := m.Called(ctx, tenantID, movements)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MoveStockResult), args.Error(1)
}

func (m *MockStockMover) FindMovements(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockMovement, error) {
	args := m.Called(ctx, tenantID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]stock.StockMovement), args.Error(1)
}

// MockReservedStockReader is a mock implementation of ReservedStockReader
type MockReservedStockReader struct {
	mock.Mock
}

func (m *MockReservedStockReader) Reserved(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]stock.ReservedStock, error) {
	args := m.Called(ctx, tenantID, productIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]stock.ReservedStock), args.Error(1)
}

// MockDriftReportSink is a mock implementation of DriftReportSink
type MockDriftReportSink struct {
	mock.Mock
}

func (m *MockDriftReportSink) StoreDriftReport(ctx context.Context, report *stock.DriftReport) (string, error) {
	args := m.Called(ctx, report)
	return args.String(0), args.Error(1)
}

func newMockTransactionScope() (*MockTransactionScope, *MockStockMovementRepository, *MockStockRepository, *MockLocationDirectory) {
	movements := new(MockStockMovementRepository)
	stocks := new(MockStockRepository)
	directory := new(MockLocationDirectory)
	return &MockTransactionScope{movements: movements, stocks: stocks, directory: directory}, movements, stocks, directory
}

func int64Ptr(v int64) *int64 {
	return &v
}
