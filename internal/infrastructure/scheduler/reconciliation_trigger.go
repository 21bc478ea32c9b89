package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/erp/stockledger/internal/domain/stock"
	"go.uber.org/zap"
)

// Reconciler runs drift detection for every tenant with ledger rows
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*stock.DriftReport, error)
}

// ReconciliationTrigger runs detection-only reconciliation on a fixed interval.
// Runs never overlap: a tick that arrives while a run is active is skipped.
type ReconciliationTrigger struct {
	interval   time.Duration
	reconciler Reconciler
	logger     *zap.Logger

	mu      sync.Mutex
	running bool
	busy    bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciliationTrigger creates a stopped trigger
func NewReconciliationTrigger(interval time.Duration, reconciler Reconciler, logger *zap.Logger) *ReconciliationTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationTrigger{interval: interval, reconciler: reconciler, logger: logger}
}

// Start launches the loop. Starting twice is a no-op.
func (t *ReconciliationTrigger) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return ErrInvalidInterval
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}
	t.running = true

	ctx, t.cancel = context.WithCancel(ctx)
	t.wg.Add(1)
	go t.loop(ctx)

	t.logger.Info("reconciliation trigger started", zap.Duration("interval", t.interval))
	return nil
}

// Stop cancels the loop and waits for an active run, bounded by ctx
func (t *ReconciliationTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.cancel()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.logger.Info("reconciliation trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one pass unless a pass is already active. It reports
// whether a pass ran.
func (t *ReconciliationTrigger) RunOnce(ctx context.Context) bool {
	t.mu.Lock()
	if t.busy {
		t.mu.Unlock()
		t.logger.Debug("reconciliation still running, skipping tick")
		return false
	}
	t.busy = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.busy = false
		t.mu.Unlock()
	}()

	start := time.Now()
	reports, err := t.reconciler.ReconcileAll(ctx)
	if err != nil {
		t.logger.Error("scheduled reconciliation failed", zap.Error(err))
		return true
	}
	drifting := 0
	for _, r := range reports {
		if r.HasDrift() {
			drifting++
		}
	}
	t.logger.Info("scheduled reconciliation finished",
		zap.Int("tenants", len(reports)),
		zap.Int("tenants_with_drift", drifting),
		zap.Duration("duration", time.Since(start)),
	)
	return true
}

func (t *ReconciliationTrigger) loop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}
