package telemetry

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// physicalLocationTypes are the location types whose stock is pickable
var physicalLocationTypes = []string{"warehouse", "bin_location", "stock_container"}

// GormStockMetricsProvider implements StockMetricsProvider and TenantProvider
// by querying the stocks table directly.
type GormStockMetricsProvider struct {
	db *gorm.DB
}

// NewGormStockMetricsProvider creates a new GormStockMetricsProvider.
func NewGormStockMetricsProvider(db *gorm.DB) *GormStockMetricsProvider {
	return &GormStockMetricsProvider{db: db}
}

// GetNegativePhysicalCount returns the number of physical rows below zero.
func (p *GormStockMetricsProvider) GetNegativePhysicalCount(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("stocks").
		Where("tenant_id = ? AND location_type IN ? AND quantity < 0", tenantID, physicalLocationTypes).
		Count(&count).Error
	return count, err
}

// GetActiveTenantIDs returns every tenant holding stock aggregates.
func (p *GormStockMetricsProvider) GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	var tenants []uuid.UUID
	err := p.db.WithContext(ctx).
		Table("stocks").
		Distinct().
		Pluck("tenant_id", &tenants).Error
	return tenants, err
}
