package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultReplayBatchSize is the number of ledger rows folded per replay batch
const DefaultReplayBatchSize = 1000

// DriftReportSink stores drift reports outside the database
type DriftReportSink interface {
	// StoreDriftReport persists the report and returns where it was stored
	StoreDriftReport(ctx context.Context, report *stock.DriftReport) (string, error)
}

// ReconciliationService rebuilds the aggregates from the ledger and compares
// or replaces the stored ones
type ReconciliationService struct {
	txScope        TransactionScope
	movementRepo   stock.StockMovementRepository
	sink           DriftReportSink
	eventPublisher shared.EventPublisher
	metrics        *telemetry.StockMetrics
	logger         *zap.Logger
	batchSize      int
	now            func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(txScope TransactionScope, movementRepo stock.StockMovementRepository, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		txScope:      txScope,
		movementRepo: movementRepo,
		logger:       logger,
		batchSize:    DefaultReplayBatchSize,
		now:          time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ReconciliationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetStockMetrics sets the metrics recorder
func (s *ReconciliationService) SetStockMetrics(metrics *telemetry.StockMetrics) {
	s.metrics = metrics
}

// SetReportSink sets where drift reports are exported
func (s *ReconciliationService) SetReportSink(sink DriftReportSink) {
	s.sink = sink
}

// SetBatchSize sets the replay batch size
func (s *ReconciliationService) SetBatchSize(size int) {
	if size > 0 {
		s.batchSize = size
	}
}

// Reconcile replays the tenant's ledger and reports every aggregate that differs.
// With correct set the stored aggregates are replaced by the replayed ones in the
// same transaction.
func (s *ReconciliationService) Reconcile(ctx context.Context, tenantID uuid.UUID, correct bool) (*stock.DriftReport, error) {
	var report *stock.DriftReport
	var err error
	labels := map[string]string{
		telemetry.ProfilingLabelOperation: "reconciliation",
		telemetry.ProfilingLabelTenantID:  tenantID.String(),
	}
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		report, err = s.reconcile(ctx, tenantID, correct)
	})
	return report, err
}

func (s *ReconciliationService) reconcile(ctx context.Context, tenantID uuid.UUID, correct bool) (*stock.DriftReport, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant is required", shared.ErrInvalidInput)
	}

	// The replay, the aggregate read and the rewrite must see one snapshot.
	// A batch committed after the replay started aborts the pass with a
	// serialization failure, which the scope retries.
	var report *stock.DriftReport
	err := s.txScope.ExecuteSerializable(ctx, func(repos TransactionalRepositories) error {
		report = &stock.DriftReport{
			ID:          uuid.New(),
			TenantID:    tenantID,
			GeneratedAt: s.now(),
		}

		resolver := make(stock.WarehouseMap)
		projection := stock.NewProjection(resolver)
		err := repos.MovementRepo().Replay(ctx, tenantID, s.batchSize, func(batch []stock.StockMovement) error {
			var unresolved []stock.LocationReference
			for _, l := range stock.MovementLocations(batch) {
				if _, ok := resolver[l]; !ok {
					unresolved = append(unresolved, l)
				}
			}
			resolved, err := stock.ResolveWarehouses(ctx, repos.LocationDirectory(), tenantID, unresolved)
			if err != nil {
				return fmt.Errorf("resolve warehouses: %w", err)
			}
			for l, w := range resolved {
				resolver[l] = w
			}
			projection.ApplyAll(batch)
			report.MovementsReplayed += int64(len(batch))
			return nil
		})
		if err != nil {
			return fmt.Errorf("replay ledger: %w", err)
		}

		stored, storedWarehouses, err := repos.StockRepo().FindAll(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("read aggregates: %w", err)
		}
		report.Drifts = stock.DetectDrift(projection, stored, storedWarehouses)

		if correct && report.HasDrift() {
			if err := repos.StockRepo().ReplaceAll(ctx, tenantID, projection.Stocks(tenantID), projection.WarehouseStocks(tenantID)); err != nil {
				return fmt.Errorf("replace aggregates: %w", err)
			}
			report.Corrected = true
		}
		return nil
	})
	if err != nil {
		s.recordRun(ctx, tenantID, telemetry.ReconcileOutcomeFailed, 0)
		return nil, err
	}

	if !report.HasDrift() {
		s.logger.Debug("Stock aggregates match the ledger",
			zap.String("tenant_id", tenantID.String()),
			zap.Int64("movements_replayed", report.MovementsReplayed),
		)
		s.recordRun(ctx, tenantID, telemetry.ReconcileOutcomeClean, 0)
		return report, nil
	}

	outcome := telemetry.ReconcileOutcomeDrift
	if report.Corrected {
		outcome = telemetry.ReconcileOutcomeCorrected
	}
	s.logger.Warn("Stock aggregates drifted from the ledger",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("drifts", len(report.Drifts)),
		zap.Bool("corrected", report.Corrected),
	)
	s.recordRun(ctx, tenantID, outcome, len(report.Drifts))
	s.exportReport(ctx, report)
	s.publish(ctx, stock.NewStockDriftDetectedEvent(tenantID, report))
	return report, nil
}

// ReconcileAll runs detection for every tenant with ledger rows. A failing
// tenant is logged and does not stop the others.
func (s *ReconciliationService) ReconcileAll(ctx context.Context) ([]*stock.DriftReport, error) {
	tenants, err := s.movementRepo.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger tenants: %w", err)
	}
	reports := make([]*stock.DriftReport, 0, len(tenants))
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := s.Reconcile(ctx, tenantID, false)
		if err != nil {
			s.logger.Error("Reconciliation failed",
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err),
			)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *ReconciliationService) exportReport(ctx context.Context, report *stock.DriftReport) {
	if s.sink == nil {
		return
	}
	location, err := s.sink.StoreDriftReport(ctx, report)
	if err != nil {
		s.logger.Warn("Failed to export drift report",
			zap.String("report_id", report.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Drift report exported",
		zap.String("report_id", report.ID.String()),
		zap.String("location", location),
	)
}

func (s *ReconciliationService) recordRun(ctx context.Context, tenantID uuid.UUID, outcome string, drifts int) {
	if s.metrics != nil {
		s.metrics.RecordReconciliation(ctx, tenantID, outcome, drifts)
	}
}

func (s *ReconciliationService) publish(ctx context.Context, events ...shared.DomainEvent) {
	if s.eventPublisher == nil {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish reconciliation events", zap.Error(err))
	}
}
