package stock

import (
	"cmp"
	"slices"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Event type constants
const (
	EventTypeStockMovementsRecorded = "stock.movements_recorded"
	EventTypePickingShortage        = "stock.picking_shortage"
	EventTypeStockDriftDetected     = "stock.drift_detected"
)

// MovementSummary is the event payload of one recorded movement
type MovementSummary struct {
	ID          uuid.UUID         `json:"id"`
	ProductID   uuid.UUID         `json:"product_id"`
	Quantity    int64             `json:"quantity"`
	Source      LocationReference `json:"source"`
	Destination LocationReference `json:"destination"`
}

// StockMovementsRecordedEvent is published after a batch was appended to the ledger
type StockMovementsRecordedEvent struct {
	shared.EventHeader
	Movements  []MovementSummary `json:"movements"`
	ProductIDs []uuid.UUID       `json:"product_ids"`
	// OrderIDs lists orders whose shipped or returned quantity changed
	OrderIDs []uuid.UUID `json:"order_ids,omitempty"`
}

// NewStockMovementsRecordedEvent builds the event for an appended batch
func NewStockMovementsRecordedEvent(tenantID uuid.UUID, movements []StockMovement) *StockMovementsRecordedEvent {
	subject := uuid.Nil
	if len(movements) > 0 {
		subject = movements[0].ID
	}
	products := make(map[uuid.UUID]struct{})
	orders := make(map[uuid.UUID]struct{})
	summaries := make([]MovementSummary, len(movements))
	for i, m := range movements {
		summaries[i] = MovementSummary{
			ID:          m.ID,
			ProductID:   m.ProductID,
			Quantity:    m.Quantity,
			Source:      m.Source,
			Destination: m.Destination,
		}
		products[m.ProductID] = struct{}{}
		for _, loc := range []LocationReference{m.Source, m.Destination} {
			if loc.Type() == LocationTypeOrder {
				orders[loc.ID()] = struct{}{}
			}
		}
	}
	return &StockMovementsRecordedEvent{
		EventHeader: shared.NewEventHeader(EventTypeStockMovementsRecorded, tenantID, subject),
		Movements:       summaries,
		ProductIDs:      sortedIDs(products),
		OrderIDs:        sortedIDs(orders),
	}
}

// PickingShortageEvent is published when a picking request could not be fully allocated
type PickingShortageEvent struct {
	shared.EventHeader
	SourceArea SourceArea        `json:"source_area"`
	Shortages  []ProductShortage `json:"shortages"`
}

// NewPickingShortageEvent builds the shortage event
func NewPickingShortageEvent(tenantID uuid.UUID, area SourceArea, shortage *ShortageError) *PickingShortageEvent {
	return &PickingShortageEvent{
		EventHeader: shared.NewEventHeader(EventTypePickingShortage, tenantID, area.WarehouseID),
		SourceArea:      area,
		Shortages:       shortage.Shortages,
	}
}

// StockDriftDetectedEvent is published when aggregates diverge from the ledger
type StockDriftDetectedEvent struct {
	shared.EventHeader
	Report *DriftReport `json:"report"`
}

// NewStockDriftDetectedEvent builds the drift event
func NewStockDriftDetectedEvent(tenantID uuid.UUID, report *DriftReport) *StockDriftDetectedEvent {
	return &StockDriftDetectedEvent{
		EventHeader: shared.NewEventHeader(EventTypeStockDriftDetected, tenantID, report.ID),
		Report:          report,
	}
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	return ids
}
