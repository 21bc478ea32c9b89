package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	s := NewInMemoryIdempotencyStore()
	s.now = clock.now
	t.Cleanup(func() { _ = s.Close() })
	return s, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	fresh, err := s.MarkProcessed(ctx, "notifier:evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = s.MarkProcessed(ctx, "notifier:evt-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	done, err := s.IsProcessed(ctx, "notifier:evt-1")
	require.NoError(t, err)
	assert.True(t, done)

	clock.advance(time.Minute)
	done, _ = s.IsProcessed(ctx, "notifier:evt-1")
	assert.False(t, done)

	fresh, err = s.MarkProcessed(ctx, "notifier:evt-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh, "an expired key can be marked again")
}

func TestInMemoryIdempotencyStore_Sweep(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	_, _ = s.MarkProcessed(ctx, "short", time.Second)
	_, _ = s.MarkProcessed(ctx, "long", time.Hour)

	clock.advance(time.Minute)
	s.sweep()

	assert.NotContains(t, s.expiry, "short")
	assert.Contains(t, s.expiry, "long")
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	s := NewInMemoryIdempotencyStore()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestNewIdempotencyStore_FallsBackWithoutRedis(t *testing.T) {
	store := NewIdempotencyStore(nil, zap.NewNop())
	defer store.Close()
	_, ok := store.(*InMemoryIdempotencyStore)
	assert.True(t, ok)
}
