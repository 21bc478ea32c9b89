package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeReconciler struct {
	calls   atomic.Int32
	block   chan struct{}
	started chan struct{}
	reports []*stock.DriftReport
	err     error
}

func (f *fakeReconciler) ReconcileAll(ctx context.Context) ([]*stock.DriftReport, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return f.reports, f.err
}

func TestReconciliationTrigger_RunOnceLogsSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &fakeReconciler{reports: []*stock.DriftReport{
		{TenantID: uuid.New()},
		{TenantID: uuid.New(), Drifts: []stock.StockDrift{{ProductID: uuid.New(), Stored: 4, Expected: 3}}},
	}}
	trigger := NewReconciliationTrigger(time.Hour, rec, zap.New(core))

	assert.True(t, trigger.RunOnce(context.Background()))

	entries := logs.FilterMessage("scheduled reconciliation finished").All()
	require.Len(t, entries, 1)
	assert.EqualValues(t, 2, entries[0].ContextMap()["tenants"])
	assert.EqualValues(t, 1, entries[0].ContextMap()["tenants_with_drift"])
}

func TestReconciliationTrigger_RunOnceError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	trigger := NewReconciliationTrigger(time.Hour, &fakeReconciler{err: errors.New("db down")}, zap.New(core))

	assert.True(t, trigger.RunOnce(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("scheduled reconciliation failed").Len())
}

func TestReconciliationTrigger_SkipsOverlappingRuns(t *testing.T) {
	rec := &fakeReconciler{block: make(chan struct{}), started: make(chan struct{}, 1)}
	trigger := NewReconciliationTrigger(time.Hour, rec, nil)

	done := make(chan bool)
	go func() { done <- trigger.RunOnce(context.Background()) }()
	<-rec.started

	assert.False(t, trigger.RunOnce(context.Background()))
	close(rec.block)
	assert.True(t, <-done)
	assert.EqualValues(t, 1, rec.calls.Load())
}

func TestReconciliationTrigger_TicksUntilStopped(t *testing.T) {
	rec := &fakeReconciler{}
	trigger := NewReconciliationTrigger(10*time.Millisecond, rec, nil)

	require.NoError(t, trigger.Start(context.Background()))
	require.NoError(t, trigger.Start(context.Background()))
	assert.Eventually(t, func() bool { return rec.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))

	after := rec.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, rec.calls.Load())
}

func TestReconciliationTrigger_InvalidInterval(t *testing.T) {
	err := NewReconciliationTrigger(0, &fakeReconciler{}, nil).Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidInterval)
}
