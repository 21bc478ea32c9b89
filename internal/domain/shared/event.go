package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact published after a ledger write commits
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	TenantID() uuid.UUID
	// SubjectID names what the event is about: the first movement of a
	// batch, a warehouse, or a drift report.
	SubjectID() uuid.UUID
}

// EventHeader carries the envelope fields shared by all stock events.
// Embed it by value; the JSON field names are part of the notification format.
type EventHeader struct {
	ID      uuid.UUID `json:"event_id"`
	Type    string    `json:"event_type"`
	At      time.Time `json:"occurred_at"`
	Tenant  uuid.UUID `json:"tenant_id"`
	Subject uuid.UUID `json:"subject_id"`
}

func (h EventHeader) EventID() uuid.UUID    { return h.ID }
func (h EventHeader) EventType() string     { return h.Type }
func (h EventHeader) OccurredAt() time.Time { return h.At }
func (h EventHeader) TenantID() uuid.UUID   { return h.Tenant }
func (h EventHeader) SubjectID() uuid.UUID  { return h.Subject }

// NewEventHeader stamps a fresh id and the current UTC time
func NewEventHeader(eventType string, tenantID, subjectID uuid.UUID) EventHeader {
	return EventHeader{
		ID:      uuid.New(),
		Type:    eventType,
		At:      time.Now().UTC(),
		Tenant:  tenantID,
		Subject: subjectID,
	}
}
