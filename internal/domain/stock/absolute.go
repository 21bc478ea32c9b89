package stock

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// AbsoluteScopeKind selects which aggregate an absolute target applies to
type AbsoluteScopeKind string

const (
	AbsoluteScopeLocation  AbsoluteScopeKind = "location"
	AbsoluteScopeWarehouse AbsoluteScopeKind = "warehouse"
	AbsoluteScopeGlobal    AbsoluteScopeKind = "global"
)

// AbsoluteStockScope is the target of an absolute stock quantity
type AbsoluteStockScope struct {
	Kind AbsoluteScopeKind
	// Location is set for AbsoluteScopeLocation
	Location LocationReference
	// WarehouseID is the warehouse for AbsoluteScopeWarehouse and the warehouse
	// receiving the correction for AbsoluteScopeGlobal
	WarehouseID uuid.UUID
}

// LocationScope targets the stock at one physical location
func LocationScope(location LocationReference) AbsoluteStockScope {
	return AbsoluteStockScope{Kind: AbsoluteScopeLocation, Location: location}
}

// WarehouseScope targets the aggregate stock of a warehouse
func WarehouseScope(warehouseID uuid.UUID) AbsoluteStockScope {
	return AbsoluteStockScope{Kind: AbsoluteScopeWarehouse, WarehouseID: warehouseID}
}

// GlobalScope targets the physical stock across all warehouses, booking the
// correction into the given default warehouse
func GlobalScope(defaultWarehouseID uuid.UUID) AbsoluteStockScope {
	return AbsoluteStockScope{Kind: AbsoluteScopeGlobal, WarehouseID: defaultWarehouseID}
}

// Validate checks the scope
func (s AbsoluteStockScope) Validate() error {
	switch s.Kind {
	case AbsoluteScopeLocation:
		if err := s.Location.Validate(); err != nil {
			return err
		}
		if !s.Location.IsPhysical() {
			return fmt.Errorf("%w: absolute stock can only be set on physical locations", shared.ErrInvalidInput)
		}
	case AbsoluteScopeWarehouse, AbsoluteScopeGlobal:
		if s.WarehouseID == uuid.Nil {
			return fmt.Errorf("%w: %s scope requires a warehouse", shared.ErrInvalidInput, s.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown absolute stock scope %q", shared.ErrInvalidInput, s.Kind)
	}
	return nil
}

// Overlaps reports whether setting both scopes for one product in a single
// batch would count some stock twice. A global scope overlaps everything, and
// a warehouse scope overlaps the locations inside that warehouse.
func (s AbsoluteStockScope) Overlaps(other AbsoluteStockScope, resolver WarehouseResolver) bool {
	if s.Kind == AbsoluteScopeGlobal || other.Kind == AbsoluteScopeGlobal {
		return true
	}
	if s.Kind == other.Kind {
		if s.Kind == AbsoluteScopeLocation {
			return s.Location == other.Location
		}
		return s.WarehouseID == other.WarehouseID
	}
	location, warehouseID := s.Location, other.WarehouseID
	if s.Kind == AbsoluteScopeWarehouse {
		location, warehouseID = other.Location, s.WarehouseID
	}
	w, ok := resolver.WarehouseOf(location)
	return ok && w == warehouseID
}

// TargetLocation is the location whose stock changes when the delta is booked
func (s AbsoluteStockScope) TargetLocation() LocationReference {
	if s.Kind == AbsoluteScopeLocation {
		return s.Location
	}
	return AtWarehouse(s.WarehouseID)
}

// CalculateDelta returns target minus current. A missing aggregate row counts as 0.
func CalculateDelta(target int64, current *int64) int64 {
	if current == nil {
		return target
	}
	return target - *current
}

// CorrectionMovement builds the movement that books delta against the scope.
// counterparty is Unknown(w) for location and warehouse scopes and
// ProductTotalStockChange for the global scope; the caller resolves w for
// location scopes (locationWarehouse may be nil for containers outside a warehouse).
// It returns nil when delta is 0.
func CorrectionMovement(tenantID, productID uuid.UUID, delta int64, scope AbsoluteStockScope, locationWarehouse *uuid.UUID, now time.Time) *StockMovement {
	if delta == 0 {
		return nil
	}
	target := scope.TargetLocation()

	var counterparty LocationReference
	switch {
	case scope.Kind == AbsoluteScopeGlobal:
		counterparty = ProductTotalStockChange()
	case scope.Kind == AbsoluteScopeWarehouse:
		counterparty = AtUnknown(scope.WarehouseID)
	case locationWarehouse != nil:
		counterparty = AtUnknown(*locationWarehouse)
	default:
		counterparty = ProductTotalStockChange()
	}

	m := &StockMovement{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		CreatedAt: now,
	}
	if delta > 0 {
		m.Quantity, m.Source, m.Destination = delta, counterparty, target
	} else {
		m.Quantity, m.Source, m.Destination = -delta, target, counterparty
	}
	return m
}
