package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"stockledger/internal/core/id"
	"stockledger/internal/domain/purchasing"
)

// CreatePurchaseOrderRequest is the body of POST /purchase-orders.
type CreatePurchaseOrderRequest struct {
	SupplierID   id.ID                      `json:"supplierId"`
	ExpectedDate *time.Time                 `json:"expectedDate"`
	Notes        string                     `json:"notes"`
	Items        []PurchaseOrderItemRequest `json:"items"`
}

// PurchaseOrderItemRequest is one requested line.
type PurchaseOrderItemRequest struct {
	ProductID id.ID           `json:"productId"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unitCost"`
}

// ToInput maps the request onto the purchasing input.
func (r CreatePurchaseOrderRequest) ToInput(userID string) purchasing.CreateInput {
	in := purchasing.CreateInput{
		SupplierID:   r.SupplierID,
		ExpectedDate: r.ExpectedDate,
		Notes:        r.Notes,
		CreatedBy:    userID,
	}
	for _, it := range r.Items {
		in.Items = append(in.Items, purchasing.CreateItemInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitCost:  it.UnitCost,
		})
	}
	return in
}

// ReceiveRequest is the body of POST /purchase-orders/:id/receive.
type ReceiveRequest struct {
	Items []ReceiveLineRequest `json:"items"`
}

// ReceiveLineRequest asks to receive quantity units of an order item.
type ReceiveLineRequest struct {
	ItemID   id.ID `json:"itemId"`
	Quantity int64 `json:"quantity"`
}

// ToLines maps the request onto receive lines.
func (r ReceiveRequest) ToLines() []purchasing.ReceiveLine {
	lines := make([]purchasing.ReceiveLine, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, purchasing.ReceiveLine{ItemID: it.ItemID, Quantity: it.Quantity})
	}
	return lines
}

// PurchaseOrderQuery filters GET /purchase-orders.
type PurchaseOrderQuery struct {
	PageQuery
	Status     string `form:"status"`
	SupplierID string `form:"supplierId"`
}
