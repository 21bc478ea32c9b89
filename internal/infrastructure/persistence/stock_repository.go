package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const aggregateBatchSize = 500

// GormStockRepository implements stock.StockRepository using GORM.
// Deltas are applied with INSERT ... ON CONFLICT so that concurrent batches
// touching the same rows serialize on the row lock instead of overwriting each other.
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository creates a new GormStockRepository
func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

// ApplyDeltas adds signed deltas to the (product, location) aggregates
func (r *GormStockRepository) ApplyDeltas(ctx context.Context, tenantID uuid.UUID, deltas []stock.StockDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.StockModel, len(deltas))
	for i, d := range deltas {
		rows[i] = models.StockModelFromDomain(stock.Stock{
			TenantID:      tenantID,
			ProductID:     d.ProductID,
			Location:      d.Location,
			Quantity:      d.Delta,
			LastInboundAt: d.InboundAt,
		}, now)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "location_key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity": gorm.Expr("stocks.quantity + excluded.quantity"),
				"last_inbound_at": gorm.Expr("CASE WHEN excluded.last_inbound_at IS NULL THEN stocks.last_inbound_at " +
					"WHEN stocks.last_inbound_at IS NULL OR excluded.last_inbound_at > stocks.last_inbound_at THEN excluded.last_inbound_at " +
					"ELSE stocks.last_inbound_at END"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		CreateInBatches(rows, aggregateBatchSize).Error
}

// ApplyWarehouseDeltas adds signed deltas to the (product, warehouse) aggregates
func (r *GormStockRepository) ApplyWarehouseDeltas(ctx context.Context, tenantID uuid.UUID, deltas []stock.WarehouseStockDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]models.WarehouseStockModel, len(deltas))
	for i, d := range deltas {
		rows[i] = models.WarehouseStockModelFromDomain(stock.WarehouseStock{
			TenantID:    tenantID,
			ProductID:   d.ProductID,
			WarehouseID: d.WarehouseID,
			Quantity:    d.Delta,
		}, now)
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "product_id"}, {Name: "warehouse_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("warehouse_stocks.quantity + excluded.quantity"),
				"updated_at": gorm.Expr("excluded.updated_at"),
			}),
		}).
		CreateInBatches(rows, aggregateBatchSize).Error
}

// FindQuantity returns the stored quantity at a location, nil when no row exists
func (r *GormStockRepository) FindQuantity(ctx context.Context, tenantID, productID uuid.UUID, location stock.LocationReference) (*int64, error) {
	var model models.StockModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND location_key = ?", tenantID, productID, location.Key()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &model.Quantity, nil
}

// FindWarehouseQuantity returns the stored quantity in a warehouse, nil when no row exists
func (r *GormStockRepository) FindWarehouseQuantity(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (*int64, error) {
	var model models.WarehouseStockModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ? AND warehouse_id = ?", tenantID, productID, warehouseID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &model.Quantity, nil
}

// SumWarehouseQuantities returns the physical stock of a product across all warehouses
func (r *GormStockRepository) SumWarehouseQuantities(ctx context.Context, tenantID, productID uuid.UUID) (*int64, error) {
	var result struct {
		Total *int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.WarehouseStockModel{}).
		Select("SUM(quantity) AS total").
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Scan(&result).Error
	if err != nil {
		return nil, err
	}
	return result.Total, nil
}

// FindByProduct returns every location aggregate of a product
func (r *GormStockRepository) FindByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.Stock, error) {
	var rows []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("location_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainStocks(rows)
}

// FindWarehouseStocksByProduct returns every warehouse aggregate of a product
func (r *GormStockRepository) FindWarehouseStocksByProduct(ctx context.Context, tenantID, productID uuid.UUID) ([]stock.WarehouseStock, error) {
	var rows []models.WarehouseStockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id = ?", tenantID, productID).
		Order("warehouse_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainWarehouseStocks(rows), nil
}

// FindInWarehouse returns positive stock on the bins of a warehouse and at the
// warehouse location itself
func (r *GormStockRepository) FindInWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID, productIDs []uuid.UUID) ([]stock.Stock, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	bins := r.db.Model(&models.BinLocationModel{}).
		Select("id").
		Where("tenant_id = ? AND warehouse_id = ?", tenantID, warehouseID)

	var rows []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND product_id IN ? AND quantity > 0", tenantID, productIDs).
		Where(
			r.db.Where("location_key = ?", stock.AtWarehouse(warehouseID).Key()).
				Or("location_type = ? AND location_id IN (?)", string(stock.LocationTypeBinLocation), bins),
		).
		Order("product_id, location_key").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainStocks(rows)
}

// FindAtLocation returns the aggregates of the products at one location.
// An empty product list returns every product at the location.
func (r *GormStockRepository) FindAtLocation(ctx context.Context, tenantID uuid.UUID, location stock.LocationReference, productIDs []uuid.UUID) ([]stock.Stock, error) {
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND location_key = ?", tenantID, location.Key())
	if len(productIDs) > 0 {
		query = query.Where("product_id IN ?", productIDs)
	}
	var rows []models.StockModel
	if err := query.Order("product_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainStocks(rows)
}

// FindAll returns every aggregate of the tenant
func (r *GormStockRepository) FindAll(ctx context.Context, tenantID uuid.UUID) ([]stock.Stock, []stock.WarehouseStock, error) {
	var stockRows []models.StockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("product_id, location_key").
		Find(&stockRows).Error; err != nil {
		return nil, nil, err
	}
	var warehouseRows []models.WarehouseStockModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("product_id, warehouse_id").
		Find(&warehouseRows).Error; err != nil {
		return nil, nil, err
	}
	stocks, err := toDomainStocks(stockRows)
	if err != nil {
		return nil, nil, err
	}
	return stocks, toDomainWarehouseStocks(warehouseRows), nil
}

// ReplaceAll overwrites every aggregate of the tenant. Callers run it inside a transaction.
func (r *GormStockRepository) ReplaceAll(ctx context.Context, tenantID uuid.UUID, stocks []stock.Stock, warehouseStocks []stock.WarehouseStock) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("tenant_id = ?", tenantID).Delete(&models.StockModel{}).Error; err != nil {
		return err
	}
	if err := db.Where("tenant_id = ?", tenantID).Delete(&models.WarehouseStockModel{}).Error; err != nil {
		return err
	}

	now := time.Now()
	if len(stocks) > 0 {
		rows := make([]models.StockModel, len(stocks))
		for i, s := range stocks {
			s.TenantID = tenantID
			rows[i] = models.StockModelFromDomain(s, now)
		}
		if err := db.CreateInBatches(rows, aggregateBatchSize).Error; err != nil {
			return err
		}
	}
	if len(warehouseStocks) > 0 {
		rows := make([]models.WarehouseStockModel, len(warehouseStocks))
		for i, s := range warehouseStocks {
			s.TenantID = tenantID
			rows[i] = models.WarehouseStockModelFromDomain(s, now)
		}
		if err := db.CreateInBatches(rows, aggregateBatchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func toDomainStocks(rows []models.StockModel) ([]stock.Stock, error) {
	stocks := make([]stock.Stock, 0, len(rows))
	for i := range rows {
		s, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, nil
}

func toDomainWarehouseStocks(rows []models.WarehouseStockModel) []stock.WarehouseStock {
	result := make([]stock.WarehouseStock, len(rows))
	for i := range rows {
		result[i] = rows[i].ToDomain()
	}
	return result
}

// Ensure GormStockRepository implements StockRepository
var _ stock.StockRepository = (*GormStockRepository)(nil)
