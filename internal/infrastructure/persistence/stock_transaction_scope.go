package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/domain/stock"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgreSQL error codes treated as transient
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
	pgUniqueViolation      = "23505"

	// stockMovementsPrimaryKey covers (tenant_id, id). It is violated only when
	// two writers of one tenant append the same id concurrently; the retry
	// then observes the winner's rows.
	stockMovementsPrimaryKey = "stock_movements_pkey"
)

// Default retry policy of GormStockTransactionScope
const (
	DefaultStockTxMaxRetries      = 3
	DefaultStockTxInitialInterval = 20 * time.Millisecond
	DefaultStockTxMaxInterval     = 500 * time.Millisecond
)

// IsTransientError reports whether a failed stock transaction may succeed when
// retried from scratch.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		case pgUniqueViolation:
			return pgErr.ConstraintName == stockMovementsPrimaryKey
		}
		return false
	}
	// SQLite reports lock contention only through the message
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// RetryObserver is notified before a transient failure is retried
type RetryObserver func(attempt int, err error, wait time.Duration)

// StockTransactionOption configures a GormStockTransactionScope
type StockTransactionOption func(*GormStockTransactionScope)

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(n uint64) StockTransactionOption {
	return func(s *GormStockTransactionScope) {
		s.maxRetries = n
	}
}

// WithBackoffIntervals sets the initial and maximum wait between attempts
func WithBackoffIntervals(initial, maxInterval time.Duration) StockTransactionOption {
	return func(s *GormStockTransactionScope) {
		s.initialInterval = initial
		s.maxInterval = maxInterval
	}
}

// WithRetryObserver registers a callback invoked on each retry
func WithRetryObserver(observer RetryObserver) StockTransactionOption {
	return func(s *GormStockTransactionScope) {
		s.observer = observer
	}
}

// WithTransactionLogger sets the logger used to report retries
func WithTransactionLogger(logger *zap.Logger) StockTransactionOption {
	return func(s *GormStockTransactionScope) {
		s.logger = logger
	}
}

// GormStockTransactionScope implements appstock.TransactionScope using GORM transactions.
// Transactions failing with a transient conflict are rolled back and rerun with
// exponential backoff; once retries are exhausted the error wraps
// shared.ErrConcurrencyConflict.
type GormStockTransactionScope struct {
	db              *gorm.DB
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	observer        RetryObserver
	logger          *zap.Logger
}

// NewGormStockTransactionScope creates a new GormStockTransactionScope
func NewGormStockTransactionScope(db *gorm.DB, opts ...StockTransactionOption) *GormStockTransactionScope {
	s := &GormStockTransactionScope{
		db:              db,
		maxRetries:      DefaultStockTxMaxRetries,
		initialInterval: DefaultStockTxInitialInterval,
		maxInterval:     DefaultStockTxMaxInterval,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs fn within a database transaction, retrying transient failures.
func (s *GormStockTransactionScope) Execute(ctx context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	return s.execute(ctx, nil, fn)
}

// ExecuteSerializable runs fn at SERIALIZABLE isolation. Serialization
// failures (40001) are transient and rerun like any other conflict.
func (s *GormStockTransactionScope) ExecuteSerializable(ctx context.Context, fn func(repos appstock.TransactionalRepositories) error) error {
	return s.execute(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
}

func (s *GormStockTransactionScope) execute(ctx context.Context, txOpts *sql.TxOptions, fn func(repos appstock.TransactionalRepositories) error) error {
	var opts []*sql.TxOptions
	if txOpts != nil {
		opts = append(opts, txOpts)
	}
	attempts := 0
	operation := func() error {
		attempts++
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&gormStockRepositories{tx: tx})
		}, opts...)
		if err != nil && !IsTransientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initialInterval
	policy.MaxInterval = s.maxInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("Retrying stock transaction after transient failure",
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if s.observer != nil {
			s.observer(attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx), notify)
	if err != nil && IsTransientError(err) {
		return fmt.Errorf("%w: stock transaction failed after %d attempts: %w", shared.ErrConcurrencyConflict, attempts, err)
	}
	return err
}

// gormStockRepositories provides the stock repositories scoped to one transaction
type gormStockRepositories struct {
	tx *gorm.DB
}

// MovementRepo returns the ledger repository scoped to the current transaction.
func (r *gormStockRepositories) MovementRepo() stock.StockMovementRepository {
	return NewGormStockMovementRepository(r.tx)
}

// StockRepo returns the aggregate repository scoped to the current transaction.
func (r *gormStockRepositories) StockRepo() stock.StockRepository {
	return NewGormStockRepository(r.tx)
}

// LocationDirectory returns the layout directory scoped to the current transaction.
func (r *gormStockRepositories) LocationDirectory() stock.LocationDirectory {
	return NewGormLocationDirectory(r.tx)
}

// Ensure GormStockTransactionScope implements TransactionScope
var _ appstock.TransactionScope = (*GormStockTransactionScope)(nil)

// Ensure gormStockRepositories implements TransactionalRepositories
var _ appstock.TransactionalRepositories = (*gormStockRepositories)(nil)
