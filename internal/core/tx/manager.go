// Package tx provides transaction management abstractions.
// Domain services depend on Manager; the pgx implementation lives in
// infrastructure/storage/postgres.
package tx

import (
	"context"
)

// Manager runs a function inside one atomic unit.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context, so a ledger
	// movement applied from inside a purchase order receipt joins the receipt's
	// transaction instead of committing on its own.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// IsolatedRunner runs fn under a savepoint when a transaction is already open.
// A failure inside fn is rolled back to the savepoint and returned; the outer
// transaction stays usable.
type IsolatedRunner interface {
	RunIsolated(ctx context.Context, fn func(ctx context.Context) error) error
}
