// Package ledger is the single authority over product stock. Every change is
// an append-only movement applied together with the product counter update.
package ledger

import (
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/product"
)

// MovementType is the kind of stock change.
type MovementType string

const (
	MovementReceipt       MovementType = "RECEIPT"
	MovementAdjustmentIn  MovementType = "ADJUSTMENT_IN"
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	MovementSale          MovementType = "SALE"
	MovementSaleReversal  MovementType = "SALE_REVERSAL"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementReceipt, MovementAdjustmentIn, MovementAdjustmentOut, MovementSale, MovementSaleReversal:
		return true
	}
	return false
}

// IsOutbound reports whether the movement removes stock.
func (t MovementType) IsOutbound() bool {
	return t == MovementAdjustmentOut || t == MovementSale
}

// Signed converts a positive magnitude into the stored signed quantity.
func (t MovementType) Signed(quantity int64) int64 {
	if t.IsOutbound() {
		return -quantity
	}
	return quantity
}

// Movement is an immutable ledger row.
type Movement struct {
	ID         id.ID        `db:"id" json:"id"`
	ProductID  id.ID        `db:"product_id" json:"productId"`
	Type       MovementType `db:"type" json:"type"`
	Quantity   int64        `db:"quantity" json:"quantity"` // signed
	StockAfter int64        `db:"stock_after" json:"stockAfter"`
	CostPrice  *types.Money `db:"cost_price" json:"costPrice,omitempty"`
	SupplierID *id.ID       `db:"supplier_id" json:"supplierId,omitempty"`
	UserID     string       `db:"user_id" json:"userId"`
	ReversalOf *id.ID       `db:"reversal_of" json:"reversalOf,omitempty"`
	Notes      string       `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
}

// MovementInput is a request to change stock. Quantity is always a positive
// magnitude; direction comes from Type.
type MovementInput struct {
	ProductID  id.ID
	Type       MovementType
	Quantity   int64
	CostPrice  *types.Money
	SupplierID *id.ID
	UserID     string
	Notes      string
}

// Validate checks the input before any row is touched.
func (in MovementInput) Validate() error {
	if id.IsNil(in.ProductID) {
		return apperror.NewValidation("product_id is required")
	}
	if !in.Type.IsValid() {
		return apperror.NewValidation(fmt.Sprintf("unknown movement type %q", in.Type)).
			WithDetail("type", in.Type)
	}
	if in.Type == MovementSaleReversal {
		return apperror.NewValidation("sale reversals are created by reversing the original sale").
			WithDetail("type", in.Type)
	}
	if in.Quantity <= 0 {
		return apperror.NewInvalidQuantity(in.Quantity)
	}
	if in.Type == MovementReceipt {
		if in.CostPrice == nil {
			return apperror.NewValidation("cost_price is required for receipts")
		}
		if in.CostPrice.IsNegative() {
			return apperror.NewValidation("cost_price must not be negative").
				WithDetail("cost_price", in.CostPrice.String())
		}
	}
	return nil
}

// MovementResult is returned by ApplyMovement.
type MovementResult struct {
	Product  product.Product `json:"product"`
	Movement Movement        `json:"movement"`
}

// MovementFilter narrows a history query.
type MovementFilter struct {
	ProductID id.ID
	Types     []MovementType
	Since     *time.Time
	Limit     int
	Offset    int
}

// ConservationReport compares the product counter with the ledger sum.
type ConservationReport struct {
	ProductID    id.ID `json:"productId"`
	CurrentStock int64 `json:"currentStock"`
	LedgerSum    int64 `json:"ledgerSum"`
	Balanced     bool  `json:"balanced"`
}
