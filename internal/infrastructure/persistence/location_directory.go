package persistence

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLocationDirectory implements stock.LocationDirectory using GORM
type GormLocationDirectory struct {
	db *gorm.DB
}

// NewGormLocationDirectory creates a new GormLocationDirectory
func NewGormLocationDirectory(db *gorm.DB) *GormLocationDirectory {
	return &GormLocationDirectory{db: db}
}

// FindBinLocations returns the bins with the given ids; unknown ids are skipped
func (r *GormLocationDirectory) FindBinLocations(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.BinLocation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.BinLocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainBins(rows), nil
}

// FindBinLocationsByWarehouse returns every bin of a warehouse ordered by code
func (r *GormLocationDirectory) FindBinLocationsByWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) ([]stock.BinLocation, error) {
	var rows []models.BinLocationModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND warehouse_id = ?", tenantID, warehouseID).
		Order("code").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainBins(rows), nil
}

// FindStockContainers returns the containers with the given ids; unknown ids are skipped
func (r *GormLocationDirectory) FindStockContainers(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]stock.StockContainer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.StockContainerModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	containers := make([]stock.StockContainer, len(rows))
	for i := range rows {
		containers[i] = rows[i].ToDomain()
	}
	return containers, nil
}

// ExistsWarehouse checks whether the warehouse exists in the tenant
func (r *GormLocationDirectory) ExistsWarehouse(ctx context.Context, tenantID, warehouseID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.WarehouseModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, warehouseID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func toDomainBins(rows []models.BinLocationModel) []stock.BinLocation {
	bins := make([]stock.BinLocation, len(rows))
	for i := range rows {
		bins[i] = rows[i].ToDomain()
	}
	return bins
}

// Ensure GormLocationDirectory implements LocationDirectory
var _ stock.LocationDirectory = (*GormLocationDirectory)(nil)
