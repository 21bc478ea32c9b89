package shared

import "context"

// EventHandler reacts to committed ledger events. Handlers run after the
// write transaction, so a failing handler never rolls back stock.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types to deliver; empty means every type.
	EventTypes() []string
}

// EventPublisher is what the stock services depend on
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus adds subscription and lifecycle to a publisher
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
