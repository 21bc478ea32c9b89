package stock

import (
	"context"

	"github.com/erp/stockledger/internal/domain/stock"
)

// TransactionScope runs ledger writes atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	// Implementations may run fn more than once when the transaction fails
	// with a transient conflict, so fn must not keep side effects outside it.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
	// ExecuteSerializable is Execute at SERIALIZABLE isolation. Passes that
	// read the whole ledger and then rewrite aggregates need it so a batch
	// committed in between fails the pass instead of being overwritten.
	ExecuteSerializable(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the stock repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	MovementRepo() stock.StockMovementRepository
	StockRepo() stock.StockRepository
	LocationDirectory() stock.LocationDirectory
}
