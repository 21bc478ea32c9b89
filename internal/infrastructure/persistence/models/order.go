package models

import (
	"github.com/google/uuid"
)

// Order states whose line items still reserve stock
const (
	OrderStateOpen       = "open"
	OrderStateInProgress = "in_progress"
	OrderStateCompleted  = "completed"
	OrderStateCancelled  = "cancelled"
)

// OpenOrderStates lists the states counted as open demand
var OpenOrderStates = []string{OrderStateOpen, OrderStateInProgress}

// OrderModel is the read model of a sales order maintained by the order system
type OrderModel struct {
	TenantModel
	OrderNumber       string `gorm:"type:varchar(50);not null"`
	State             string `gorm:"type:varchar(20);not null;index"`
	ExternallyManaged bool   `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderLineItemModel is an ordered product quantity
type OrderLineItemModel struct {
	TenantModel
	OrderID   uuid.UUID `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity  int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderLineItemModel) TableName() string {
	return "order_line_items"
}
