// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain types to keep the domain layer free
// from ORM concerns.
//
// Structure:
// - base.go: Base persistence models (BaseModel, TenantModel)
// - stock.go: Ledger rows and the derived stock aggregates
// - layout.go: Warehouses, bin locations and stock containers
// - order.go: Order read model used for reserved stock
package models
