package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the part of kafka.Writer the notifier needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous writer for the configured topic
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
}

// StockChangeNotification is the message order management consumes
type StockChangeNotification struct {
	EventID    uuid.UUID               `json:"event_id"`
	TenantID   uuid.UUID               `json:"tenant_id"`
	OccurredAt time.Time               `json:"occurred_at"`
	ProductIDs []uuid.UUID             `json:"product_ids"`
	OrderIDs   []uuid.UUID             `json:"order_ids,omitempty"`
	Movements  []stock.MovementSummary `json:"movements"`
}

// OrderNotifier forwards recorded movement batches to Kafka so order
// management can recompute shipped quantities and availability.
// Messages are keyed by tenant to keep a tenant's batches ordered.
type OrderNotifier struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewOrderNotifier creates the handler
func NewOrderNotifier(writer MessageWriter, logger *zap.Logger) *OrderNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderNotifier{writer: writer, logger: logger}
}

func (n *OrderNotifier) EventTypes() []string {
	return []string{stock.EventTypeStockMovementsRecorded}
}

// Handle implements shared.EventHandler
func (n *OrderNotifier) Handle(ctx context.Context, evt shared.DomainEvent) error {
	recorded, ok := evt.(*stock.StockMovementsRecordedEvent)
	if !ok {
		return fmt.Errorf("order notifier: unexpected event %T", evt)
	}

	payload, err := json.Marshal(StockChangeNotification{
		EventID:    recorded.EventID(),
		TenantID:   recorded.TenantID(),
		OccurredAt: recorded.OccurredAt(),
		ProductIDs: recorded.ProductIDs,
		OrderIDs:   recorded.OrderIDs,
		Movements:  recorded.Movements,
	})
	if err != nil {
		return fmt.Errorf("encode stock change notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(recorded.TenantID().String()),
		Value: payload,
		Time:  recorded.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "ce-type", Value: []byte(recorded.EventType())},
			{Key: "ce-id", Value: []byte(recorded.EventID().String())},
			{Key: "ce-time", Value: []byte(recorded.OccurredAt().Format(time.RFC3339))},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish stock change notification: %w", err)
	}

	n.logger.Debug("stock change notification published",
		zap.String("event_id", recorded.EventID().String()),
		zap.Int("orders", len(recorded.OrderIDs)),
	)
	return nil
}

// Close flushes and closes the writer
func (n *OrderNotifier) Close() error {
	return n.writer.Close()
}

var _ shared.EventHandler = (*OrderNotifier)(nil)
