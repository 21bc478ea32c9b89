package stock

import (
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// StockMovement is an immutable transfer of a product quantity between two locations.
// The id is supplied by the client and doubles as idempotency key.
type StockMovement struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	ProductID        uuid.UUID
	ProductVersionID uuid.UUID
	Quantity         int64
	Source           LocationReference
	Destination      LocationReference
	UserID           *uuid.UUID
	Comment          string
	CreatedAt        time.Time
}

// Movement error codes
const (
	CodeInvalidStockMovement  = "INVALID_STOCK_MOVEMENT"
	CodePartialMovementReplay = "PARTIAL_MOVEMENT_REPLAY"
)

// NewStockMovement creates a movement with a generated id
func NewStockMovement(tenantID, productID uuid.UUID, quantity int64, source, destination LocationReference) (*StockMovement, error) {
	m := &StockMovement{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ProductID:   productID,
		Quantity:    quantity,
		Source:      source,
		Destination: destination,
		CreatedAt:   time.Now(),
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that the movement is well-formed
func (m StockMovement) Validate() error {
	if reason := m.invalidReason(); reason != "" {
		return NewInvalidMovementError(0, m.ID, reason)
	}
	return nil
}

func (m StockMovement) invalidReason() string {
	switch {
	case m.ID == uuid.Nil:
		return "id is required"
	case m.TenantID == uuid.Nil:
		return "tenant is required"
	case m.ProductID == uuid.Nil:
		return "product is required"
	case m.Quantity <= 0:
		return fmt.Sprintf("quantity must be positive, got %d", m.Quantity)
	}
	if err := m.Source.Validate(); err != nil {
		return "source: " + err.Error()
	}
	if err := m.Destination.Validate(); err != nil {
		return "destination: " + err.Error()
	}
	if m.Source == m.Destination {
		return "source and destination must differ"
	}
	return ""
}

// ValidateBatch validates every movement of a batch; the first violation aborts the batch
func ValidateBatch(movements []StockMovement) error {
	if len(movements) == 0 {
		return shared.NewDomainError(CodeInvalidStockMovement, "movement batch is empty")
	}
	seen := make(map[uuid.UUID]struct{}, len(movements))
	for i, m := range movements {
		if reason := m.invalidReason(); reason != "" {
			return NewInvalidMovementError(i, m.ID, reason)
		}
		if m.TenantID != movements[0].TenantID {
			return NewInvalidMovementError(i, m.ID, "all movements of a batch must belong to one tenant")
		}
		if _, dup := seen[m.ID]; dup {
			return NewInvalidMovementError(i, m.ID, "duplicate movement id in batch")
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

// MovementIDs returns the ids of the batch in order
func MovementIDs(movements []StockMovement) []uuid.UUID {
	ids := make([]uuid.UUID, len(movements))
	for i, m := range movements {
		ids[i] = m.ID
	}
	return ids
}

// NewInvalidMovementError builds the validation error for a single movement
func NewInvalidMovementError(index int, movementID uuid.UUID, reason string) *shared.DomainError {
	return shared.NewDomainErrorf(CodeInvalidStockMovement, "invalid stock movement at index %d: %s", index, reason).
		WithDetails(map[string]any{
			"index":       index,
			"movement_id": movementID.String(),
			"reason":      reason,
		})
}

// NewPartialReplayError rejects a batch of which only some ids were already recorded
func NewPartialReplayError(existing []uuid.UUID, total int) *shared.DomainError {
	ids := make([]string, len(existing))
	for i, id := range existing {
		ids[i] = id.String()
	}
	return shared.NewDomainErrorf(CodePartialMovementReplay,
		"%d of %d movement ids already exist; resubmit the original batch unchanged", len(existing), total).
		WithDetails(map[string]any{"existing_ids": ids})
}
