package models

import (
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
)

// StockMovementModel is the persistence model for one ledger row.
// Rows are inserted once and never updated.
type StockMovementModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID  `gorm:"type:uuid;primaryKey;index:idx_stock_movements_tenant_product,priority:1"`
	ProductID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_stock_movements_tenant_product,priority:2"`
	ProductVersionID *uuid.UUID `gorm:"type:uuid"`
	Quantity         int64      `gorm:"not null"`
	SourceType       string     `gorm:"type:varchar(40);not null"`
	SourceID         *uuid.UUID `gorm:"type:uuid"`
	SourceKey        string     `gorm:"type:varchar(80);not null;index"`
	DestinationType  string     `gorm:"type:varchar(40);not null"`
	DestinationID    *uuid.UUID `gorm:"type:uuid"`
	DestinationKey   string     `gorm:"type:varchar(80);not null;index"`
	UserID           *uuid.UUID `gorm:"type:uuid"`
	Comment          string     `gorm:"type:varchar(500)"`
	CreatedAt        time.Time  `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (StockMovementModel) TableName() string {
	return "stock_movements"
}

// ToDomain converts the persistence model to a domain StockMovement.
func (m *StockMovementModel) ToDomain() (*stock.StockMovement, error) {
	source, err := LocationFromColumns(m.SourceType, m.SourceID)
	if err != nil {
		return nil, err
	}
	destination, err := LocationFromColumns(m.DestinationType, m.DestinationID)
	if err != nil {
		return nil, err
	}
	movement := &stock.StockMovement{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ProductID:   m.ProductID,
		Quantity:    m.Quantity,
		Source:      source,
		Destination: destination,
		UserID:      m.UserID,
		Comment:     m.Comment,
		CreatedAt:   m.CreatedAt,
	}
	if m.ProductVersionID != nil {
		movement.ProductVersionID = *m.ProductVersionID
	}
	return movement, nil
}

// StockMovementModelFromDomain creates a persistence model from a domain StockMovement.
func StockMovementModelFromDomain(s *stock.StockMovement) *StockMovementModel {
	sourceType, sourceID := LocationColumns(s.Source)
	destinationType, destinationID := LocationColumns(s.Destination)
	var productVersionID *uuid.UUID
	if s.ProductVersionID != uuid.Nil {
		v := s.ProductVersionID
		productVersionID = &v
	}
	return &StockMovementModel{
		ID:               s.ID,
		TenantID:         s.TenantID,
		ProductID:        s.ProductID,
		ProductVersionID: productVersionID,
		Quantity:         s.Quantity,
		SourceType:       sourceType,
		SourceID:         sourceID,
		SourceKey:        s.Source.Key(),
		DestinationType:  destinationType,
		DestinationID:    destinationID,
		DestinationKey:   s.Destination.Key(),
		UserID:           s.UserID,
		Comment:          s.Comment,
		CreatedAt:        s.CreatedAt,
	}
}

// StockModel is the derived quantity of a product at one location
type StockModel struct {
	TenantID      uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ProductID     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	LocationKey   string     `gorm:"type:varchar(80);primaryKey"`
	LocationType  string     `gorm:"type:varchar(40);not null;index"`
	LocationID    *uuid.UUID `gorm:"type:uuid;index"`
	Quantity      int64      `gorm:"not null;default:0"`
	LastInboundAt *time.Time
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockModel) TableName() string {
	return "stocks"
}

// ToDomain converts the persistence model to a domain Stock.
func (m *StockModel) ToDomain() (stock.Stock, error) {
	location, err := LocationFromColumns(m.LocationType, m.LocationID)
	if err != nil {
		return stock.Stock{}, err
	}
	return stock.Stock{
		TenantID:      m.TenantID,
		ProductID:     m.ProductID,
		Location:      location,
		Quantity:      m.Quantity,
		LastInboundAt: m.LastInboundAt,
	}, nil
}

// StockModelFromDomain creates a persistence model from a domain Stock.
func StockModelFromDomain(s stock.Stock, updatedAt time.Time) StockModel {
	locationType, locationID := LocationColumns(s.Location)
	return StockModel{
		TenantID:      s.TenantID,
		ProductID:     s.ProductID,
		LocationKey:   s.Location.Key(),
		LocationType:  locationType,
		LocationID:    locationID,
		Quantity:      s.Quantity,
		LastInboundAt: s.LastInboundAt,
		UpdatedAt:     updatedAt,
	}
}

// WarehouseStockModel is the derived quantity of a product inside one warehouse
type WarehouseStockModel struct {
	TenantID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	WarehouseID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Quantity    int64     `gorm:"not null;default:0"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WarehouseStockModel) TableName() string {
	return "warehouse_stocks"
}

// ToDomain converts the persistence model to a domain WarehouseStock.
func (m *WarehouseStockModel) ToDomain() stock.WarehouseStock {
	return stock.WarehouseStock{
		TenantID:    m.TenantID,
		ProductID:   m.ProductID,
		WarehouseID: m.WarehouseID,
		Quantity:    m.Quantity,
	}
}

// WarehouseStockModelFromDomain creates a persistence model from a domain WarehouseStock.
func WarehouseStockModelFromDomain(s stock.WarehouseStock, updatedAt time.Time) WarehouseStockModel {
	return WarehouseStockModel{
		TenantID:    s.TenantID,
		ProductID:   s.ProductID,
		WarehouseID: s.WarehouseID,
		Quantity:    s.Quantity,
		UpdatedAt:   updatedAt,
	}
}

// LocationColumns splits a reference into its type and nullable id columns
func LocationColumns(l stock.LocationReference) (string, *uuid.UUID) {
	if l.Type().IsSentinel() {
		return string(l.Type()), nil
	}
	id := l.ID()
	return string(l.Type()), &id
}

// LocationFromColumns rebuilds a reference from its type and id columns
func LocationFromColumns(locationType string, id *uuid.UUID) (stock.LocationReference, error) {
	ref := uuid.Nil
	if id != nil {
		ref = *id
	}
	return stock.NewLocationReference(stock.LocationType(locationType), ref)
}
