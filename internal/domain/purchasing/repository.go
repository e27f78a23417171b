package purchasing

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Repository persists purchase orders with their items.
type Repository interface {
	// Create inserts the order and all of its items.
	Create(ctx context.Context, o *Order) error

	// Get returns the order with items. NotFound when absent.
	Get(ctx context.Context, orderID id.ID) (*Order, error)

	// GetForUpdate locks the order row for the surrounding transaction and
	// returns it with items.
	GetForUpdate(ctx context.Context, orderID id.ID) (*Order, error)

	UpdateItemReceived(ctx context.Context, itemID id.ID, received int64) error
	UpdateStatus(ctx context.Context, orderID id.ID, status Status, receivedAt *time.Time, updatedAt time.Time) error

	// List returns orders without items, newest first.
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)
}

// NumberGenerator issues human-readable order numbers.
type NumberGenerator interface {
	Next(ctx context.Context, prefix string) (string, error)
}
