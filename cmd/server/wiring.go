package main

import (
	"context"
	"fmt"
	"time"

	stockapp "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/erp/stockledger/internal/infrastructure/auth"
	"github.com/erp/stockledger/internal/infrastructure/cache"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/event"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"github.com/erp/stockledger/internal/infrastructure/messaging"
	"github.com/erp/stockledger/internal/infrastructure/persistence"
	"github.com/erp/stockledger/internal/infrastructure/reservation"
	"github.com/erp/stockledger/internal/infrastructure/scheduler"
	"github.com/erp/stockledger/internal/infrastructure/storage"
	"github.com/erp/stockledger/internal/infrastructure/strategy"
	"github.com/erp/stockledger/internal/infrastructure/telemetry"
	"github.com/erp/stockledger/internal/interfaces/http/handler"
	"github.com/erp/stockledger/internal/interfaces/http/middleware"
	"github.com/erp/stockledger/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const meterName = "stockledger"

// application owns every long-lived component so shutdown can run in reverse
// order of construction
type application struct {
	engine *gin.Engine
	log    *zap.Logger

	db          *persistence.Database
	redis       *redis.Client
	bus         *event.InMemoryEventBus
	notifier    *messaging.OrderNotifier
	metrics     *telemetry.StockMetrics
	poolMetrics metric.Registration
	trigger     *scheduler.ReconciliationTrigger
}

func newApplication(ctx context.Context, cfg *config.Config, providers *telemetry.Providers, log *zap.Logger) (*application, error) {
	app := &application{log: log}
	meter := providers.Meter(meterName)

	gormLog := logger.NewGormLogger(log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabase(ctx, &cfg.Database, gormLog)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	app.db = db
	log.Info("Database connected successfully")

	if cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.InstrumentDB(db.DB, cfg.Telemetry.DBLogFullSQL, log); err != nil {
			log.Warn("Database tracing disabled", zap.Error(err))
		}
	}
	if reg, err := telemetry.RegisterPoolMetrics(meter, db.DB); err != nil {
		log.Warn("Connection pool metrics disabled", zap.Error(err))
	} else {
		app.poolMetrics = reg
	}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			// reservations fall back to the order read model alone
			log.Warn("Redis unavailable, continuing without it", zap.Error(err))
		} else {
			app.redis = client
		}
	}

	stockProvider := telemetry.NewGormStockMetricsProvider(db.DB)
	metrics, err := telemetry.NewStockMetrics(telemetry.StockMetricsConfig{
		Meter:         meter,
		Logger:        log,
		StockProvider: stockProvider,
	})
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("stock metrics: %w", err)
	}
	app.metrics = metrics
	metrics.StartPeriodicCollection(ctx, stockProvider, cfg.Telemetry.MetricsInterval)

	app.bus = event.NewInMemoryEventBus(log)
	if err := app.bus.Start(ctx); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("start event bus: %w", err)
	}
	app.subscribeNotifier(cfg)

	services, err := app.buildServices(ctx, cfg, db.DB)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	if cfg.Reconciliation.Enabled {
		app.trigger = scheduler.NewReconciliationTrigger(cfg.Reconciliation.Interval, services.reconciliation, log)
		if err := app.trigger.Start(ctx); err != nil {
			app.close(ctx)
			return nil, fmt.Errorf("start reconciliation trigger: %w", err)
		}
	}

	engine, err := router.NewEngine(router.EngineOptions{
		App:       cfg.App,
		HTTP:      cfg.HTTP,
		Telemetry: cfg.Telemetry,
		Logger:    log,
		Meter:     meter,
	})
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("build http engine: %w", err)
	}

	checks := map[string]handler.Pinger{"database": db}
	if app.redis != nil {
		checks["redis"] = redisPinger{app.redis}
	}
	systemHandler := handler.NewSystemHandler(cfg.App.Name, serviceVersion, checks)
	engine.GET("/health", systemHandler.Health)

	stockHandler := handler.NewStockHandler(
		services.movements,
		services.picking,
		services.absolute,
		services.queries,
		services.reconciliation,
	)
	router.NewRouter(engine, router.WithAPIMiddleware(router.AuthMiddleware(tokenVerifier(cfg.JWT, log), log)...)).
		Register(stockHandler).
		Setup()

	app.engine = engine
	return app, nil
}

type serviceSet struct {
	movements      *stockapp.StockMovementService
	picking        *stockapp.PickingService
	absolute       *stockapp.AbsoluteStockService
	queries        *stockapp.StockQueryService
	reconciliation *stockapp.ReconciliationService
}

func (a *application) buildServices(ctx context.Context, cfg *config.Config, db *gorm.DB) (*serviceSet, error) {
	log := a.log

	txScope := persistence.NewGormStockTransactionScope(db,
		persistence.WithMaxRetries(uint64(max(cfg.Stock.MaxTransactionRetries, 0))),
		persistence.WithBackoffIntervals(cfg.Stock.RetryInitialInterval, cfg.Stock.RetryMaxInterval),
		persistence.WithTransactionLogger(log),
		persistence.WithRetryObserver(func(_ int, _ error, _ time.Duration) {
			a.metrics.RecordTransactionRetry(context.Background())
		}),
	)

	movementRepo := persistence.NewGormStockMovementRepository(db)
	stockRepo := persistence.NewGormStockRepository(db)
	directory := persistence.NewGormLocationDirectory(db)

	reserved := stock.NewReservedStockCalculator(persistence.NewGormOrderDemandReader(db))
	if cfg.Reservation.RedisCollectorsEnabled {
		if a.redis == nil {
			log.Warn("Redis reservation collectors requested but redis is not connected")
		} else {
			reserved.RegisterReservationCollector(reservation.NewHashReservationCollector(a.redis, cfg.Reservation, log))
			reserved.RegisterExternallyManagedCollector(reservation.NewSetExternallyManagedCollector(a.redis, cfg.Reservation, log))
		}
	}

	strategies, err := strategy.NewRegistryWithDefaults(cfg.Stock.PickingStrategy, cfg.Stock.RoutingStrategy)
	if err != nil {
		return nil, fmt.Errorf("strategy registry: %w", err)
	}

	movements := stockapp.NewStockMovementService(txScope, movementRepo, log)
	movements.SetEventPublisher(a.bus)
	movements.SetStockMetrics(a.metrics)

	picking := stockapp.NewPickingService(stockRepo, directory, reserved, strategies, movements, log)
	picking.SetEventPublisher(a.bus)
	picking.SetStockMetrics(a.metrics)

	absolute := stockapp.NewAbsoluteStockService(stockRepo, directory, movements, log)
	absolute.SetDefaultWarehouse(cfg.Stock.DefaultWarehouseID)

	queries := stockapp.NewStockQueryService(movementRepo, stockRepo, reserved)

	reconciliation := stockapp.NewReconciliationService(txScope, movementRepo, log)
	reconciliation.SetEventPublisher(a.bus)
	reconciliation.SetStockMetrics(a.metrics)
	reconciliation.SetBatchSize(cfg.Reconciliation.BatchSize)
	if cfg.Reconciliation.ExportReports {
		sink, err := newDriftReportSink(ctx, cfg.Storage, log)
		if err != nil {
			// detection still runs, reports stay in the response and the logs
			log.Warn("Drift report export disabled", zap.Error(err))
		} else {
			reconciliation.SetReportSink(sink)
		}
	}

	return &serviceSet{
		movements:      movements,
		picking:        picking,
		absolute:       absolute,
		queries:        queries,
		reconciliation: reconciliation,
	}, nil
}

// subscribeNotifier forwards order-relevant ledger events to Kafka. Deliveries
// are deduplicated per event id.
func (a *application) subscribeNotifier(cfg *config.Config) {
	if !cfg.Kafka.Enabled {
		return
	}
	a.notifier = messaging.NewOrderNotifier(messaging.NewKafkaWriter(cfg.Kafka), a.log)
	store := cache.NewIdempotencyStore(a.redis, a.log)
	idempotent := event.NewIdempotentHandler("order-notifier", a.notifier, store, shared.IdempotencyConfig{
		Enabled: cfg.Idempotency.Enabled,
		TTL:     cfg.Idempotency.TTL,
	}, a.log)
	a.bus.Subscribe(idempotent, a.notifier.EventTypes()...)
	a.log.Info("Order notifications enabled",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
}

func newDriftReportSink(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*storage.DriftReportStore, error) {
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Bucket); err != nil {
		return nil, err
	}
	return storage.NewDriftReportStore(client, cfg.Bucket, cfg.ReportPrefix, log), nil
}

// tokenVerifier returns nil when no secret is configured; the API then trusts
// the X-Tenant-ID header.
func tokenVerifier(cfg config.JWTConfig, log *zap.Logger) middleware.TokenVerifier {
	if cfg.Secret == "" {
		log.Warn("JWT secret not configured, tenants are taken from the X-Tenant-ID header")
		return nil
	}
	return auth.NewVerifier(cfg)
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// close stops components in reverse order of construction. Safe on a
// partially built application.
func (a *application) close(ctx context.Context) {
	if a.trigger != nil {
		if err := a.trigger.Stop(ctx); err != nil {
			a.log.Warn("Reconciliation trigger stop failed", zap.Error(err))
		}
	}
	if a.bus != nil {
		if err := a.bus.Stop(ctx); err != nil {
			a.log.Warn("Event bus stop failed", zap.Error(err))
		}
	}
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.log.Warn("Kafka writer close failed", zap.Error(err))
		}
	}
	if a.metrics != nil {
		a.metrics.Stop()
	}
	if a.poolMetrics != nil {
		_ = a.poolMetrics.Unregister()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Redis close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Error("Error closing database", zap.Error(err))
		}
	}
}
