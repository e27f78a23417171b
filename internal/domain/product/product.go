// Package product defines the stock-keeping unit tracked by the ledger.
package product

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// Product is a stock-keeping unit. CurrentStock and CostPrice change only
// through ledger movements; the thresholds are edited elsewhere.
type Product struct {
	ID                id.ID       `db:"id" json:"id"`
	SKU               string      `db:"sku" json:"sku"`
	Name              string      `db:"name" json:"name"`
	CurrentStock      int64       `db:"current_stock" json:"currentStock"`
	CostPrice         types.Money `db:"cost_price" json:"costPrice"`
	LowStockThreshold int64       `db:"low_stock_threshold" json:"lowStockThreshold"`
	ReorderPoint      int64       `db:"reorder_point" json:"reorderPoint"`
	OverStockLimit    int64       `db:"over_stock_limit" json:"overStockLimit"`
	ExpiryDate        *time.Time  `db:"expiry_date" json:"expiryDate,omitempty"`
	CreatedAt         time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `db:"updated_at" json:"updatedAt"`
}

// Label returns a human-friendly identifier for messages.
func (p *Product) Label() string {
	if p.SKU == "" {
		return p.Name
	}
	return p.Name + " (" + p.SKU + ")"
}

// Reader is the read side used by alerting and scheduling.
type Reader interface {
	// GetByID returns apperror NotFound when the product does not exist.
	GetByID(ctx context.Context, productID id.ID) (*Product, error)

	// ListPage returns up to limit products ordered by ID, strictly after afterID.
	// Pass id.Nil() for the first page.
	ListPage(ctx context.Context, afterID id.ID, limit int) ([]Product, error)

	// ListIDs returns all product IDs ordered by ID.
	ListIDs(ctx context.Context) ([]id.ID, error)
}
