// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// StockMetrics tracks ledger throughput, picking outcomes and aggregate health.
type StockMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	movementBatchesTotal   *Counter
	movementsTotal         *Counter
	movedQuantityTotal     *Counter
	transactionRetries     *Counter
	moveDuration           *Histogram
	pickingSolutionsTotal  *Counter
	pickingShortagesTotal  *Counter
	reconciliationRuns     *Counter
	driftRows              *Gauge
	negativePhysicalStocks *Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	stockProvider StockMetricsProvider
}

// StockMetricsProvider provides aggregate data for periodic metrics collection.
type StockMetricsProvider interface {
	// GetNegativePhysicalCount returns how many physical (product, location) rows are below zero
	GetNegativePhysicalCount(ctx context.Context, tenantID uuid.UUID) (int64, error)
}

// TenantProvider provides tenant IDs for periodic metrics collection.
type TenantProvider interface {
	GetActiveTenantIDs(ctx context.Context) ([]uuid.UUID, error)
}

// StockMetricsConfig holds configuration for stock metrics.
type StockMetricsConfig struct {
	Meter         metric.Meter
	Logger        *zap.Logger
	StockProvider StockMetricsProvider
}

// Attribute keys used by stock metrics
var (
	AttrOutcome      = attribute.Key("outcome")
	AttrLocationType = attribute.Key("location_type")
	AttrScope        = attribute.Key("scope")
)

// Outcomes of a moveStock call
const (
	MoveOutcomeRecorded = "recorded"
	MoveOutcomeReplayed = "replayed"
	MoveOutcomeRejected = "rejected"
	MoveOutcomeFailed   = "failed"
)

// Outcomes of a reconciliation run
const (
	ReconcileOutcomeClean     = "clean"
	ReconcileOutcomeDrift     = "drift"
	ReconcileOutcomeCorrected = "corrected"
	ReconcileOutcomeFailed    = "failed"
)

// NewStockMetrics creates a new StockMetrics instance.
func NewStockMetrics(cfg StockMetricsConfig) (*StockMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sm := &StockMetrics{
		meter:         cfg.Meter,
		logger:        logger,
		stopChan:      make(chan struct{}),
		stockProvider: cfg.StockProvider,
	}

	var err error
	if sm.movementBatchesTotal, err = NewCounter(cfg.Meter,
		"stock_movement_batches_total", "Total number of moveStock calls by outcome", "{batches}"); err != nil {
		return nil, err
	}
	if sm.movementsTotal, err = NewCounter(cfg.Meter,
		"stock_movements_total", "Total number of ledger rows appended", "{movements}"); err != nil {
		return nil, err
	}
	if sm.movedQuantityTotal, err = NewCounter(cfg.Meter,
		"stock_moved_quantity_total", "Total quantity moved through the ledger", "{units}"); err != nil {
		return nil, err
	}
	if sm.transactionRetries, err = NewCounter(cfg.Meter,
		"stock_transaction_retries_total", "Stock transactions retried after a transient conflict", "{retries}"); err != nil {
		return nil, err
	}
	if sm.moveDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "stock_move_duration_seconds",
		Description: "Duration of moveStock calls including retries",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if sm.pickingSolutionsTotal, err = NewCounter(cfg.Meter,
		"stock_picking_solutions_total", "Picking solutions calculated", "{solutions}"); err != nil {
		return nil, err
	}
	if sm.pickingShortagesTotal, err = NewCounter(cfg.Meter,
		"stock_picking_shortages_total", "Products that could not be fully allocated", "{products}"); err != nil {
		return nil, err
	}
	if sm.reconciliationRuns, err = NewCounter(cfg.Meter,
		"stock_reconciliation_runs_total", "Reconciliation runs by outcome", "{runs}"); err != nil {
		return nil, err
	}
	if sm.driftRows, err = NewGauge(cfg.Meter,
		"stock_drift_rows", "Aggregate rows that disagreed with the ledger in the last reconciliation", "{rows}"); err != nil {
		return nil, err
	}
	if sm.negativePhysicalStocks, err = NewGauge(cfg.Meter,
		"stock_negative_physical_rows", "Physical location rows with negative stock", "{rows}"); err != nil {
		return nil, err
	}

	return sm, nil
}

// RecordMoveStock records one moveStock call.
func (sm *StockMetrics) RecordMoveStock(ctx context.Context, tenantID uuid.UUID, outcome string, movements int, quantity int64, d time.Duration) {
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID.String()), AttrOutcome.String(outcome)}
	sm.movementBatchesTotal.Inc(ctx, attrs...)
	sm.moveDuration.RecordDuration(ctx, d, attrs...)
	if outcome == MoveOutcomeRecorded {
		sm.movementsTotal.Add(ctx, int64(movements), AttrTenantID.String(tenantID.String()))
		sm.movedQuantityTotal.Add(ctx, quantity, AttrTenantID.String(tenantID.String()))
	}
}

// RecordTransactionRetry records one retried stock transaction.
func (sm *StockMetrics) RecordTransactionRetry(ctx context.Context) {
	sm.transactionRetries.Inc(ctx)
}

// RecordPickingSolution records a calculated picking solution and its shortages.
func (sm *StockMetrics) RecordPickingSolution(ctx context.Context, tenantID uuid.UUID, shortages int) {
	tenant := AttrTenantID.String(tenantID.String())
	sm.pickingSolutionsTotal.Inc(ctx, tenant)
	if shortages > 0 {
		sm.pickingShortagesTotal.Add(ctx, int64(shortages), tenant)
	}
}

// RecordReconciliation records a reconciliation run.
func (sm *StockMetrics) RecordReconciliation(ctx context.Context, tenantID uuid.UUID, outcome string, drifts int) {
	tenant := AttrTenantID.String(tenantID.String())
	sm.reconciliationRuns.Inc(ctx, tenant, AttrOutcome.String(outcome))
	sm.driftRows.Record(ctx, int64(drifts), tenant)
}

// RecordNegativePhysicalStocks records the number of negative physical rows.
func (sm *StockMetrics) RecordNegativePhysicalStocks(ctx context.Context, tenantID uuid.UUID, count int64) {
	sm.negativePhysicalStocks.Record(ctx, count, AttrTenantID.String(tenantID.String()))
}

// StartPeriodicCollection starts periodic collection of gauge metrics.
// This is non-blocking - use Stop() to stop collection.
func (sm *StockMetrics) StartPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	sm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go sm.runPeriodicCollection(ctx, tenantProvider, interval)
	})
}

func (sm *StockMetrics) runPeriodicCollection(ctx context.Context, tenantProvider TenantProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sm.collectStockMetrics(ctx, tenantProvider)

	for {
		select {
		case <-sm.stopChan:
			sm.logger.Info("Stopping periodic stock metrics collection")
			return
		case <-ctx.Done():
			sm.logger.Info("Context cancelled, stopping periodic stock metrics collection")
			return
		case <-ticker.C:
			sm.collectStockMetrics(ctx, tenantProvider)
		}
	}
}

func (sm *StockMetrics) collectStockMetrics(ctx context.Context, tenantProvider TenantProvider) {
	if sm.stockProvider == nil {
		sm.logger.Debug("No stock provider configured, skipping stock metrics collection")
		return
	}

	tenantIDs, err := tenantProvider.GetActiveTenantIDs(ctx)
	if err != nil {
		sm.logger.Error("Failed to get tenant IDs for metrics collection", zap.Error(err))
		return
	}

	for _, tenantID := range tenantIDs {
		count, err := sm.stockProvider.GetNegativePhysicalCount(ctx, tenantID)
		if err != nil {
			sm.logger.Warn("Failed to count negative stock for tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		sm.RecordNegativePhysicalStocks(ctx, tenantID, count)
	}
}

// Stop stops the periodic collection.
func (sm *StockMetrics) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewStockMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
