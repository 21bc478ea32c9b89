package persistence

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	appstock "github.com/erp/stockledger/internal/application/stock"
	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"wrapped deadlock", fmt.Errorf("append: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"duplicate movement id", &pgconn.PgError{Code: "23505", ConstraintName: "stock_movements_pkey"}, true},
		{"other unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "warehouses_code_key"}, false},
		{"check violation", &pgconn.PgError{Code: "23514"}, false},
		{"sqlite busy", errors.New("database is locked"), true},
		{"domain error", shared.ErrInvalidInput, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func newMockStockTransactionScope(t *testing.T, opts ...StockTransactionOption) (*GormStockTransactionScope, sqlmock.Sqlmock) {
	db, mock := newMockDatabase(t)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	opts = append([]StockTransactionOption{WithBackoffIntervals(time.Millisecond, 2*time.Millisecond)}, opts...)
	return NewGormStockTransactionScope(db.DB, opts...), mock
}

func TestGormStockTransactionScope_Execute(t *testing.T) {
	deadlock := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}

	t.Run("commits on success", func(t *testing.T) {
		scope, mock := newMockStockTransactionScope(t)
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := scope.Execute(context.Background(), func(repos appstock.TransactionalRepositories) error {
			calls++
			assert.NotNil(t, repos.MovementRepo())
			assert.NotNil(t, repos.StockRepo())
			assert.NotNil(t, repos.LocationDirectory())
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("retries transient failures with a fresh transaction", func(t *testing.T) {
		var retries []int
		scope, mock := newMockStockTransactionScope(t, WithRetryObserver(func(attempt int, err error, wait time.Duration) {
			retries = append(retries, attempt)
		}))
		for range 2 {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}
		mock.ExpectBegin()
		mock.ExpectCommit()

		calls := 0
		err := scope.Execute(context.Background(), func(repos appstock.TransactionalRepositories) error {
			calls++
			if calls < 3 {
				return deadlock
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, []int{1, 2}, retries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted retries surface a concurrency conflict", func(t *testing.T) {
		scope, mock := newMockStockTransactionScope(t, WithMaxRetries(2))
		for range 3 {
			mock.ExpectBegin()
			mock.ExpectRollback()
		}

		calls := 0
		err := scope.Execute(context.Background(), func(repos appstock.TransactionalRepositories) error {
			calls++
			return deadlock
		})

		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		var pgErr *pgconn.PgError
		assert.ErrorAs(t, err, &pgErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("does not retry permanent failures", func(t *testing.T) {
		scope, mock := newMockStockTransactionScope(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		calls := 0
		err := scope.Execute(context.Background(), func(repos appstock.TransactionalRepositories) error {
			calls++
			return shared.ErrInvalidInput
		})

		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.NotErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, 1, calls)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStockTransactionScope_ExecuteSerializable(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001", Message: "could not serialize access due to concurrent update"}

	scope, mock := newMockStockTransactionScope(t)
	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := scope.ExecuteSerializable(context.Background(), func(repos appstock.TransactionalRepositories) error {
		calls++
		if calls == 1 {
			return serialization
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
