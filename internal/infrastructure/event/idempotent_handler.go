package event

import (
	"context"

	"github.com/erp/stockledger/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotentHandler delivers each event id at most once to the wrapped handler
// within the configured TTL. Keys are scoped by name so two handlers of the same
// event do not suppress each other.
type IdempotentHandler struct {
	name    string
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
}

// NewIdempotentHandler wraps handler
func NewIdempotentHandler(name string, handler shared.EventHandler, store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger) *IdempotentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotentHandler{name: name, handler: handler, store: store, config: cfg, logger: logger}
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle marks the event as processed before delivering it. If the store is
// unreachable the event is delivered anyway. A failed delivery keeps its mark
// until the TTL expires.
func (h *IdempotentHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if !h.config.Enabled || h.store == nil {
		return h.handler.Handle(ctx, evt)
	}

	key := h.name + ":" + evt.EventID().String()
	fresh, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		h.logger.Warn("idempotency store unavailable, delivering anyway",
			zap.String("handler", h.name),
			zap.String("event_id", evt.EventID().String()),
			zap.Error(err),
		)
	case !fresh:
		h.logger.Debug("duplicate event skipped",
			zap.String("handler", h.name),
			zap.String("event_id", evt.EventID().String()),
		)
		return nil
	}
	return h.handler.Handle(ctx, evt)
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
