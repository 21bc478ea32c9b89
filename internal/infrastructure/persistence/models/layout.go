package models

import (
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
)

// WarehouseModel is the persistence model for a warehouse
type WarehouseModel struct {
	TenantModel
	Code string `gorm:"type:varchar(50);not null"`
	Name string `gorm:"type:varchar(200);not null"`
}

// TableName returns the table name for GORM
func (WarehouseModel) TableName() string {
	return "warehouses"
}

// ToDomain converts the persistence model to a domain Warehouse.
func (m *WarehouseModel) ToDomain() stock.Warehouse {
	return stock.Warehouse{ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name}
}

// BinLocationModel is the persistence model for a bin location
type BinLocationModel struct {
	TenantModel
	WarehouseID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code        string    `gorm:"type:varchar(50);not null"`
	Priority    int       `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (BinLocationModel) TableName() string {
	return "bin_locations"
}

// ToDomain converts the persistence model to a domain BinLocation.
func (m *BinLocationModel) ToDomain() stock.BinLocation {
	return stock.BinLocation{
		ID:          m.ID,
		TenantID:    m.TenantID,
		WarehouseID: m.WarehouseID,
		Code:        m.Code,
		Priority:    m.Priority,
	}
}

// StockContainerModel is the persistence model for a stock container
type StockContainerModel struct {
	TenantModel
	WarehouseID *uuid.UUID `gorm:"type:uuid;index"`
	Code        string     `gorm:"type:varchar(50);not null"`
}

// TableName returns the table name for GORM
func (StockContainerModel) TableName() string {
	return "stock_containers"
}

// ToDomain converts the persistence model to a domain StockContainer.
func (m *StockContainerModel) ToDomain() stock.StockContainer {
	return stock.StockContainer{ID: m.ID, TenantID: m.TenantID, WarehouseID: m.WarehouseID, Code: m.Code}
}
