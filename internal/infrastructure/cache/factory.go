package cache

import (
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewIdempotencyStore returns the Redis store when a client is available and
// falls back to the in-memory store otherwise.
func NewIdempotencyStore(client *redis.Client, logger *zap.Logger) shared.IdempotencyStore {
	if client != nil {
		logger.Info("using redis idempotency store")
		return NewRedisIdempotencyStore(client, "")
	}
	logger.Warn("redis disabled, using in-memory idempotency store; duplicate delivery is possible across instances")
	return NewInMemoryIdempotencyStore()
}
