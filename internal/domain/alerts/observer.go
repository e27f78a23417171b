package alerts

import (
	"context"
	"fmt"

	"stockledger/internal/domain/ledger"
)

var _ ledger.StockObserver = (*Service)(nil)

// StockChanged resolves stockout alerts as soon as a receipt lifts stock
// strictly above the low-stock threshold. It runs inside the receipt's
// transaction.
func (s *Service) StockChanged(ctx context.Context, change ledger.StockChange) error {
	if change.Movement.Type != ledger.MovementReceipt {
		return nil
	}
	p := change.Product
	if p.CurrentStock <= p.LowStockThreshold {
		return nil
	}

	result := &ReconcileResult{ProductID: p.ID}
	note := fmt.Sprintf("stock replenished to %d", p.CurrentStock)
	return s.resolve(ctx, result, p.ID, StockoutTypes, note, s.now())
}
