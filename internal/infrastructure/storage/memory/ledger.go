package memory

import (
	"context"
	"slices"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/product"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	s *Store
}

// GetProduct implements ledger.Repository.
func (r *LedgerRepo) GetProduct(ctx context.Context, productID id.ID) (*product.Product, error) {
	return r.s.Products().GetByID(ctx, productID)
}

// GetProductForUpdate implements ledger.Repository.
func (r *LedgerRepo) GetProductForUpdate(ctx context.Context, productID id.ID) (*product.Product, error) {
	if !inTx(ctx) {
		return nil, ErrNoTransaction
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("GetProductForUpdate"); err != nil {
		return nil, err
	}
	p, ok := r.s.data.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	return &p, nil
}

// UpdateProductStock implements ledger.Repository.
func (r *LedgerRepo) UpdateProductStock(_ context.Context, productID id.ID, stock int64, cost types.Money) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("UpdateProductStock"); err != nil {
		return err
	}
	p, ok := r.s.data.products[productID]
	if !ok {
		return apperror.NewNotFound("product", productID)
	}
	p.CurrentStock = stock
	p.CostPrice = cost
	r.s.data.products[productID] = p
	return nil
}

// InsertMovement implements ledger.Repository.
func (r *LedgerRepo) InsertMovement(_ context.Context, m *ledger.Movement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fault("InsertMovement"); err != nil {
		return err
	}
	r.s.data.movements = append(r.s.data.movements, *m)
	return nil
}

// GetMovement implements ledger.Repository.
func (r *LedgerRepo) GetMovement(_ context.Context, movementID id.ID) (*ledger.Movement, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.data.movements {
		if m.ID == movementID {
			return &m, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID)
}

// ReversalExists implements ledger.Repository.
func (r *LedgerRepo) ReversalExists(_ context.Context, movementID id.ID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.data.movements {
		if m.ReversalOf != nil && *m.ReversalOf == movementID {
			return true, nil
		}
	}
	return false, nil
}

// ListMovements implements ledger.Repository.
func (r *LedgerRepo) ListMovements(_ context.Context, f ledger.MovementFilter) ([]ledger.Movement, int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []ledger.Movement
	for i := len(r.s.data.movements) - 1; i >= 0; i-- {
		m := r.s.data.movements[i]
		if m.ProductID != f.ProductID {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, m.Type) {
			continue
		}
		if f.Since != nil && m.CreatedAt.Before(*f.Since) {
			continue
		}
		matched = append(matched, m)
	}
	total := int64(len(matched))
	return page(matched, f.Offset, f.Limit), total, nil
}

// SumMovements implements ledger.Repository.
func (r *LedgerRepo) SumMovements(_ context.Context, productID id.ID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, m := range r.s.data.movements {
		if m.ProductID == productID {
			sum += m.Quantity
		}
	}
	return sum, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
