package reservation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCollectorUnavailable is returned while a collector's circuit is open
var ErrCollectorUnavailable = errors.New("reservation collector unavailable")

// RedisReader is the subset of redis.Cmdable used by the collectors
type RedisReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
	SMIsMember(ctx context.Context, key string, members ...interface{}) *redis.BoolSliceCmd
}

func newBreaker(name string, cfg config.ReservationConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("reservation collector circuit changed",
				zap.String("collector", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrCollectorUnavailable, cb.Name())
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// HashReservationCollector reads quantities reserved by an external system from
// the hash <prefix>:<tenant>:reserved, one integer field per product id.
type HashReservationCollector struct {
	client  RedisReader
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// NewHashReservationCollector creates the collector
func NewHashReservationCollector(client RedisReader, cfg config.ReservationConfig, logger *zap.Logger) *HashReservationCollector {
	return &HashReservationCollector{
		client:  client,
		prefix:  cfg.KeyPrefix,
		breaker: newBreaker("redis-reservations", cfg, logger),
	}
}

func (c *HashReservationCollector) Name() string { return "redis-reservations" }

// CollectReservations implements stock.ExternalReservationCollector.
// Missing fields and non-positive values contribute nothing.
func (c *HashReservationCollector) CollectReservations(ctx context.Context, tenantID uuid.UUID, productIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]int64{}, nil
	}
	fields := make([]string, len(productIDs))
	for i, id := range productIDs {
		fields[i] = id.String()
	}
	key := fmt.Sprintf("%s:%s:reserved", c.prefix, tenantID)

	values, err := execute(c.breaker, func() ([]interface{}, error) {
		return c.client.HMGet(ctx, key, fields...).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	result := make(map[uuid.UUID]int64, len(productIDs))
	for i, v := range values {
		s, ok := v.(string)
		if !ok || i >= len(productIDs) {
			continue
		}
		qty, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("reservation of product %s in %s is not an integer: %q", productIDs[i], key, s)
		}
		if qty > 0 {
			result[productIDs[i]] = qty
		}
	}
	return result, nil
}

// SetExternallyManagedCollector flags orders listed in the set
// <prefix>:<tenant>:externally_managed.
type SetExternallyManagedCollector struct {
	client  RedisReader
	prefix  string
	breaker *gobreaker.CircuitBreaker
}

// NewSetExternallyManagedCollector creates the collector
func NewSetExternallyManagedCollector(client RedisReader, cfg config.ReservationConfig, logger *zap.Logger) *SetExternallyManagedCollector {
	return &SetExternallyManagedCollector{
		client:  client,
		prefix:  cfg.KeyPrefix,
		breaker: newBreaker("redis-externally-managed", cfg, logger),
	}
}

func (c *SetExternallyManagedCollector) Name() string { return "redis-externally-managed" }

// CollectExternallyManaged implements stock.ExternallyManagedCollector
func (c *SetExternallyManagedCollector) CollectExternallyManaged(ctx context.Context, tenantID uuid.UUID, orderIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	if len(orderIDs) == 0 {
		return map[uuid.UUID]bool{}, nil
	}
	members := make([]interface{}, len(orderIDs))
	for i, id := range orderIDs {
		members[i] = id.String()
	}
	key := fmt.Sprintf("%s:%s:externally_managed", c.prefix, tenantID)

	flags, err := execute(c.breaker, func() ([]bool, error) {
		return c.client.SMIsMember(ctx, key, members...).Result()
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	result := make(map[uuid.UUID]bool, len(orderIDs))
	for i, flag := range flags {
		if flag && i < len(orderIDs) {
			result[orderIDs[i]] = true
		}
	}
	return result, nil
}

var (
	_ stock.ExternalReservationCollector = (*HashReservationCollector)(nil)
	_ stock.ExternallyManagedCollector   = (*SetExternallyManagedCollector)(nil)
)
