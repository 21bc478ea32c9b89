package stock

import (
	"fmt"
	"strings"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// ProductShortage describes the unmet part of one requested product
type ProductShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int64     `json:"requested"`
	Available int64     `json:"available"`
	Unmet     int64     `json:"unmet"`
}

// ShortageError is returned when a picking request cannot be fully allocated.
// It carries the partial solution so the caller can decide to book it anyway.
type ShortageError struct {
	Shortages       []ProductShortage
	PartialSolution *PickingSolution
}

// Error implements error
func (e *ShortageError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("product %s: requested %d, available %d, unmet %d", s.ProductID, s.Requested, s.Available, s.Unmet)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// Unwrap makes errors.Is(err, shared.ErrInsufficientStock) hold
func (e *ShortageError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// Unmet returns the unmet quantity of a product, 0 if it was fully allocated
func (e *ShortageError) Unmet(productID uuid.UUID) int64 {
	for _, s := range e.Shortages {
		if s.ProductID == productID {
			return s.Unmet
		}
	}
	return 0
}

// DomainError renders the shortage as a domain error with structured details
func (e *ShortageError) DomainError() *shared.DomainError {
	return &shared.DomainError{
		Code:    shared.ErrInsufficientStock.Code,
		Message: e.Error(),
		Details: map[string]any{"shortages": e.Shortages},
	}
}
