package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/ledger"
)

// ApplyMovementRequest is the body of POST /products/:id/movements.
type ApplyMovementRequest struct {
	Type       ledger.MovementType `json:"type" binding:"required"`
	Quantity   int64               `json:"quantity"`
	CostPrice  *decimal.Decimal    `json:"costPrice"`
	SupplierID *id.ID              `json:"supplierId"`
	Notes      string              `json:"notes"`
}

// ToInput maps the request onto the ledger input.
func (r ApplyMovementRequest) ToInput(productID id.ID, userID string) ledger.MovementInput {
	return ledger.MovementInput{
		ProductID:  productID,
		Type:       r.Type,
		Quantity:   r.Quantity,
		CostPrice:  r.CostPrice,
		SupplierID: r.SupplierID,
		UserID:     userID,
		Notes:      r.Notes,
	}
}

// ReverseSaleRequest is the body of POST /movements/:id/reverse.
type ReverseSaleRequest struct {
	Notes string `json:"notes"`
}

// HistoryQuery filters GET /products/:id/movements.
type HistoryQuery struct {
	PageQuery
	Types []string   `form:"type"`
	Since *time.Time `form:"since"`
}

// ToFilter maps the query onto the ledger filter.
func (q HistoryQuery) ToFilter(productID id.ID) ledger.MovementFilter {
	f := ledger.MovementFilter{
		ProductID: productID,
		Since:     q.Since,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}
	for _, t := range q.Types {
		f.Types = append(f.Types, ledger.MovementType(t))
	}
	return f
}
