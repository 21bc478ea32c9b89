// Package stock contains the stock ledger domain: location references, stock
// movements, derived aggregates, picking allocation and routing.
package stock

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// LocationType identifies the variant of a LocationReference
type LocationType string

const (
	LocationTypeWarehouse               LocationType = "warehouse"
	LocationTypeBinLocation             LocationType = "bin_location"
	LocationTypeStockContainer          LocationType = "stock_container"
	LocationTypeUnknown                 LocationType = "unknown"
	LocationTypeOrder                   LocationType = "order"
	LocationTypeReturnOrder             LocationType = "return_order"
	LocationTypeProductTotalStockChange LocationType = "product_total_stock_change"
	LocationTypeShopwareMigration       LocationType = "shopware_migration"
)

// AllLocationTypes returns every location variant
func AllLocationTypes() []LocationType {
	return []LocationType{
		LocationTypeWarehouse,
		LocationTypeBinLocation,
		LocationTypeStockContainer,
		LocationTypeUnknown,
		LocationTypeOrder,
		LocationTypeReturnOrder,
		LocationTypeProductTotalStockChange,
		LocationTypeShopwareMigration,
	}
}

// IsValid returns true if the location type is a known variant
func (t LocationType) IsValid() bool {
	switch t {
	case LocationTypeWarehouse, LocationTypeBinLocation, LocationTypeStockContainer,
		LocationTypeUnknown, LocationTypeOrder, LocationTypeReturnOrder,
		LocationTypeProductTotalStockChange, LocationTypeShopwareMigration:
		return true
	default:
		return false
	}
}

// IsSentinel returns true for variants that carry no identifier
func (t LocationType) IsSentinel() bool {
	return t == LocationTypeProductTotalStockChange || t == LocationTypeShopwareMigration
}

// IsPhysical returns true for variants holding stock that can be picked or counted
func (t LocationType) IsPhysical() bool {
	switch t {
	case LocationTypeWarehouse, LocationTypeBinLocation, LocationTypeStockContainer:
		return true
	default:
		return false
	}
}

// IsUnbounded returns true for sink/source variants allowed to go negative
func (t LocationType) IsUnbounded() bool {
	return t.IsValid() && !t.IsPhysical()
}

// String returns the string representation of the location type
func (t LocationType) String() string {
	return string(t)
}

// LocationReference is a tagged identifier of where stock resides.
// The zero value is invalid. References are comparable and can be used as map keys;
// two references are equal only when both variant and identifier match.
type LocationReference struct {
	locationType LocationType
	id           uuid.UUID
}

// AtWarehouse references stock held in a warehouse but on no bin
func AtWarehouse(warehouseID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeWarehouse, id: warehouseID}
}

// AtBinLocation references a bin location
func AtBinLocation(binLocationID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeBinLocation, id: binLocationID}
}

// AtStockContainer references a stock container (tote, pallet, box)
func AtStockContainer(containerID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeStockContainer, id: containerID}
}

// AtUnknown references the catch-all bucket of a warehouse
func AtUnknown(warehouseID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeUnknown, id: warehouseID}
}

// AtOrder references stock handed over to an order
func AtOrder(orderID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeOrder, id: orderID}
}

// AtReturnOrder references stock received by a return order
func AtReturnOrder(returnOrderID uuid.UUID) LocationReference {
	return LocationReference{locationType: LocationTypeReturnOrder, id: returnOrderID}
}

// ProductTotalStockChange references the source/sink of absolute stock corrections
func ProductTotalStockChange() LocationReference {
	return LocationReference{locationType: LocationTypeProductTotalStockChange}
}

// ShopwareMigration references the source of stock imported from an external shop system
func ShopwareMigration() LocationReference {
	return LocationReference{locationType: LocationTypeShopwareMigration}
}

// NewLocationReference builds and validates a reference from its parts
func NewLocationReference(locationType LocationType, id uuid.UUID) (LocationReference, error) {
	ref := LocationReference{locationType: locationType, id: id}
	if err := ref.Validate(); err != nil {
		return LocationReference{}, err
	}
	return ref, nil
}

// Type returns the variant
func (l LocationReference) Type() LocationType {
	return l.locationType
}

// ID returns the identifier; uuid.Nil for sentinel variants
func (l LocationReference) ID() uuid.UUID {
	return l.id
}

// IsZero reports whether the reference is unset
func (l LocationReference) IsZero() bool {
	return l.locationType == ""
}

// Equal reports whether both references address the same location
func (l LocationReference) Equal(other LocationReference) bool {
	return l == other
}

// Key returns the stable hash of the reference, e.g. "bin_location:<uuid>" or
// "product_total_stock_change". It is persisted as location_key.
func (l LocationReference) Key() string {
	if l.locationType.IsSentinel() {
		return string(l.locationType)
	}
	return string(l.locationType) + ":" + l.id.String()
}

// String implements fmt.Stringer
func (l LocationReference) String() string {
	return l.Key()
}

// IsPhysical returns true if the reference addresses pickable stock
func (l LocationReference) IsPhysical() bool {
	return l.locationType.IsPhysical()
}

// IsUnbounded returns true if the reference may go negative
func (l LocationReference) IsUnbounded() bool {
	return l.locationType.IsUnbounded()
}

// Validate checks that the variant is known and the identifier matches the variant
func (l LocationReference) Validate() error {
	if !l.locationType.IsValid() {
		return fmt.Errorf("%w: unknown location type %q", shared.ErrInvalidInput, l.locationType)
	}
	if l.locationType.IsSentinel() {
		if l.id != uuid.Nil {
			return fmt.Errorf("%w: location type %q carries no id", shared.ErrInvalidInput, l.locationType)
		}
		return nil
	}
	if l.id == uuid.Nil {
		return fmt.Errorf("%w: location type %q requires an id", shared.ErrInvalidInput, l.locationType)
	}
	return nil
}

// ParseLocationKey is the inverse of Key
func ParseLocationKey(key string) (LocationReference, error) {
	typePart, idPart, hasID := strings.Cut(key, ":")
	locationType := LocationType(typePart)
	if !hasID {
		return NewLocationReference(locationType, uuid.Nil)
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return LocationReference{}, fmt.Errorf("%w: invalid location key %q", shared.ErrInvalidInput, key)
	}
	return NewLocationReference(locationType, id)
}

type locationJSON struct {
	Type LocationType `json:"type"`
	ID   *uuid.UUID   `json:"id,omitempty"`
}

// MarshalJSON encodes the reference as {"type": "...", "id": "..."}
func (l LocationReference) MarshalJSON() ([]byte, error) {
	v := locationJSON{Type: l.locationType}
	if !l.locationType.IsSentinel() {
		id := l.id
		v.ID = &id
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes and validates a reference
func (l *LocationReference) UnmarshalJSON(data []byte) error {
	var v locationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	id := uuid.Nil
	if v.ID != nil {
		id = *v.ID
	}
	ref, err := NewLocationReference(v.Type, id)
	if err != nil {
		return err
	}
	*l = ref
	return nil
}
