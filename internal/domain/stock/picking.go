package stock

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// SourceArea is where a picking request may take stock from: a whole warehouse
// or one explicit physical location.
type SourceArea struct {
	WarehouseID uuid.UUID          `json:"warehouse_id,omitempty"`
	Location    *LocationReference `json:"location,omitempty"`
}

// WarehouseArea picks from any bin of the warehouse, then from its unassigned stock
func WarehouseArea(warehouseID uuid.UUID) SourceArea {
	return SourceArea{WarehouseID: warehouseID}
}

// LocationArea picks from exactly one location
func LocationArea(location LocationReference) SourceArea {
	return SourceArea{Location: &location}
}

// IsWarehouse reports whether the area spans a whole warehouse
func (a SourceArea) IsWarehouse() bool {
	return a.Location == nil
}

// Validate checks that exactly one area form is set
func (a SourceArea) Validate() error {
	if a.Location == nil {
		if a.WarehouseID == uuid.Nil {
			return fmt.Errorf("%w: source area requires a warehouse or a location", shared.ErrInvalidInput)
		}
		return nil
	}
	if a.WarehouseID != uuid.Nil {
		return fmt.Errorf("%w: source area takes either a warehouse or a location, not both", shared.ErrInvalidInput)
	}
	if err := a.Location.Validate(); err != nil {
		return err
	}
	if !a.Location.IsPhysical() {
		return fmt.Errorf("%w: cannot pick from %s location", shared.ErrInvalidInput, a.Location.Type())
	}
	return nil
}

// PickingRequest asks for product quantities from a source area
type PickingRequest struct {
	ProductQuantities map[uuid.UUID]int64
	SourceArea        SourceArea
	// ProtectReservedStock keeps stock promised to orders out of the allocation.
	ProtectReservedStock bool
}

// Validate checks the request
func (r PickingRequest) Validate() error {
	if len(r.ProductQuantities) == 0 {
		return fmt.Errorf("%w: picking request has no products", shared.ErrInvalidInput)
	}
	for productID, qty := range r.ProductQuantities {
		if productID == uuid.Nil {
			return fmt.Errorf("%w: picking request contains an empty product id", shared.ErrInvalidInput)
		}
		if qty <= 0 {
			return fmt.Errorf("%w: quantity for product %s must be positive", shared.ErrInvalidInput, productID)
		}
	}
	return r.SourceArea.Validate()
}

// ProductIDs returns the requested products in ascending order
func (r PickingRequest) ProductIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.ProductQuantities))
	for id := range r.ProductQuantities {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	return ids
}

// ProductPick is one line of a picking solution
type ProductPick struct {
	ProductID uuid.UUID         `json:"product_id"`
	Quantity  int64             `json:"quantity"`
	Location  LocationReference `json:"location"`
}

// PickingSolution is a transient allocation of requested quantities to locations
type PickingSolution struct {
	Picks []ProductPick `json:"picks"`
}

// IsEmpty reports whether nothing was allocated
func (s *PickingSolution) IsEmpty() bool {
	return s == nil || len(s.Picks) == 0
}

// QuantityByProduct sums allocated quantities per product
func (s *PickingSolution) QuantityByProduct() map[uuid.UUID]int64 {
	totals := make(map[uuid.UUID]int64)
	if s == nil {
		return totals
	}
	for _, p := range s.Picks {
		totals[p.ProductID] += p.Quantity
	}
	return totals
}

// Locations returns the distinct locations of the solution in first-seen order
func (s *PickingSolution) Locations() []LocationReference {
	seen := make(map[LocationReference]struct{})
	var locations []LocationReference
	for _, p := range s.Picks {
		if _, ok := seen[p.Location]; ok {
			continue
		}
		seen[p.Location] = struct{}{}
		locations = append(locations, p.Location)
	}
	return locations
}

type movementOptions struct {
	userID  *uuid.UUID
	comment string
	idSeed  *uuid.UUID
	now     func() time.Time
}

// MovementOption customizes movements created from a picking solution
type MovementOption func(*movementOptions)

// WithUser records the acting user on every movement
func WithUser(userID uuid.UUID) MovementOption {
	return func(o *movementOptions) {
		o.userID = &userID
	}
}

// WithComment records a comment on every movement
func WithComment(comment string) MovementOption {
	return func(o *movementOptions) {
		o.comment = comment
	}
}

// WithIDSeed derives movement ids from the seed and the pick index, so that
// converting the same solution twice yields the same batch.
func WithIDSeed(seed uuid.UUID) MovementOption {
	return func(o *movementOptions) {
		o.idSeed = &seed
	}
}

// SeededMovementID is the id of the i-th movement created with WithIDSeed(seed)
func SeededMovementID(seed uuid.UUID, i int) uuid.UUID {
	return uuid.NewSHA1(seed, []byte(strconv.Itoa(i)))
}

// CreateStockMovementsWithDestination converts the solution into a ledger batch
// moving every pick to the destination.
func (s *PickingSolution) CreateStockMovementsWithDestination(tenantID uuid.UUID, destination LocationReference, opts ...MovementOption) ([]StockMovement, error) {
	if s.IsEmpty() {
		return nil, fmt.Errorf("%w: picking solution is empty", shared.ErrInvalidInput)
	}
	if err := destination.Validate(); err != nil {
		return nil, err
	}
	o := movementOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	createdAt := o.now()
	movements := make([]StockMovement, 0, len(s.Picks))
	for i, pick := range s.Picks {
		id := uuid.New()
		if o.idSeed != nil {
			id = SeededMovementID(*o.idSeed, i)
		}
		m := StockMovement{
			ID:          id,
			TenantID:    tenantID,
			ProductID:   pick.ProductID,
			Quantity:    pick.Quantity,
			Source:      pick.Location,
			Destination: destination,
			UserID:      o.userID,
			Comment:     o.comment,
			CreatedAt:   createdAt,
		}
		if reason := m.invalidReason(); reason != "" {
			return nil, NewInvalidMovementError(i, m.ID, reason)
		}
		movements = append(movements, m)
	}
	return movements, nil
}
