// Package purchasing places purchase orders and receives them into stock.
package purchasing

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Status of a purchase order. Derived from its items, never set directly.
type Status string

const (
	StatusOrdered           Status = "ORDERED"
	StatusPartiallyReceived Status = "PARTIALLY_RECEIVED"
	StatusReceived          Status = "RECEIVED"
)

// IsTerminal reports whether no further receipts can change the order.
func (s Status) IsTerminal() bool {
	return s == StatusReceived
}

// Order is a purchase order.
type Order struct {
	ID           id.ID      `db:"id" json:"id"`
	Number       string     `db:"number" json:"number"`
	SupplierID   id.ID      `db:"supplier_id" json:"supplierId"`
	Status       Status     `db:"status" json:"status"`
	ExpectedDate *time.Time `db:"expected_date" json:"expectedDate,omitempty"`
	ReceivedAt   *time.Time `db:"received_at" json:"receivedAt,omitempty"`
	Notes        string     `db:"notes" json:"notes,omitempty"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
	Items        []Item     `db:"-" json:"items"`
}

// ProductIDs returns the distinct products on the order, in item order.
func (o *Order) ProductIDs() []id.ID {
	seen := make(map[id.ID]struct{}, len(o.Items))
	out := make([]id.ID, 0, len(o.Items))
	for _, it := range o.Items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		out = append(out, it.ProductID)
	}
	return out
}

// Item is one order line.
type Item struct {
	ID               id.ID       `db:"id" json:"id"`
	OrderID          id.ID       `db:"order_id" json:"orderId"`
	ProductID        id.ID       `db:"product_id" json:"productId"`
	QuantityOrdered  int64       `db:"quantity_ordered" json:"quantityOrdered"`
	QuantityReceived int64       `db:"quantity_received" json:"quantityReceived"`
	UnitCost         types.Money `db:"unit_cost" json:"unitCost"`
}

// Remaining returns how many units can still be received.
func (it Item) Remaining() int64 {
	if r := it.QuantityOrdered - it.QuantityReceived; r > 0 {
		return r
	}
	return 0
}

// DeriveStatus computes the order status from all of its items.
func DeriveStatus(items []Item) Status {
	if len(items) == 0 {
		return StatusOrdered
	}
	fulfilled, touched := 0, 0
	for _, it := range items {
		if it.QuantityReceived >= it.QuantityOrdered {
			fulfilled++
		}
		if it.QuantityReceived > 0 {
			touched++
		}
	}
	switch {
	case fulfilled == len(items):
		return StatusReceived
	case touched > 0:
		return StatusPartiallyReceived
	default:
		return StatusOrdered
	}
}

// CreateInput is a request to place an order.
type CreateInput struct {
	SupplierID   id.ID
	ExpectedDate *time.Time
	Notes        string
	CreatedBy    string
	Items        []CreateItemInput
}

// CreateItemInput is one requested line.
type CreateItemInput struct {
	ProductID id.ID
	Quantity  int64
	UnitCost  types.Money
}

// Validate checks the request shape.
func (in CreateInput) Validate() error {
	if id.IsNil(in.SupplierID) {
		return apperror.NewValidation("supplier_id is required")
	}
	if len(in.Items) == 0 {
		return apperror.NewValidation("purchase order needs at least one item")
	}
	for i, it := range in.Items {
		if id.IsNil(it.ProductID) {
			return apperror.NewValidation("product_id is required").WithDetail("line", i)
		}
		if it.Quantity <= 0 {
			return apperror.NewInvalidQuantity(it.Quantity).WithDetail("line", i)
		}
		if it.UnitCost.IsNegative() {
			return apperror.NewValidation("unit_cost must not be negative").WithDetail("line", i)
		}
	}
	return nil
}

// ReceiveLine asks to receive Quantity units of an order item.
type ReceiveLine struct {
	ItemID   id.ID
	Quantity int64
}

// LineResult reports what happened to one receive line.
type LineResult struct {
	ItemID     id.ID  `json:"itemId"`
	ProductID  id.ID  `json:"productId"`
	Requested  int64  `json:"requested"`
	Accepted   int64  `json:"accepted"`
	Skipped    bool   `json:"skipped"`
	MovementID *id.ID `json:"movementId,omitempty"`
}

// ReceiptSummary is the result of Receive.
type ReceiptSummary struct {
	OrderID        id.ID        `json:"orderId"`
	OrderNumber    string       `json:"orderNumber"`
	PreviousStatus Status       `json:"previousStatus"`
	Status         Status       `json:"status"`
	TotalAccepted  int64        `json:"totalAccepted"`
	Lines          []LineResult `json:"lines"`
}

// ListFilter narrows List.
type ListFilter struct {
	Status     *Status
	SupplierID *id.ID
	Limit      int
	Offset     int
}
