package memory

import (
	"context"
	"sync"

	"stockledger/internal/core/tx"
)

var (
	_ tx.Manager        = (*TxManager)(nil)
	_ tx.IsolatedRunner = (*TxManager)(nil)
)

type txKey struct{}

type txState struct{}

// TxManager serializes transactions over a Store and restores the snapshot
// taken at BEGIN when fn fails.
type TxManager struct {
	store *Store
	mu    sync.Mutex
}

// NewTxManager creates a transaction manager for store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, &txState{})); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

// RunIsolated implements tx.IsolatedRunner with a nested snapshot.
func (m *TxManager) RunIsolated(ctx context.Context, fn func(ctx context.Context) error) error {
	if !inTx(ctx) {
		return m.RunInTransaction(ctx, fn)
	}
	snap := m.store.snapshot()
	if err := fn(ctx); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}
