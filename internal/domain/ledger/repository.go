package ledger

import (
	"context"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/product"
)

// Repository is the persistence port of the ledger.
// Movements are insert-only: no update or delete exists.
type Repository interface {
	// GetProduct reads a product without locking.
	GetProduct(ctx context.Context, productID id.ID) (*product.Product, error)

	// GetProductForUpdate reads and row-locks a product until the surrounding
	// transaction ends. Must be called inside a transaction.
	GetProductForUpdate(ctx context.Context, productID id.ID) (*product.Product, error)

	// UpdateProductStock writes the new counter and unit cost.
	UpdateProductStock(ctx context.Context, productID id.ID, stock int64, cost types.Money) error

	InsertMovement(ctx context.Context, m *Movement) error
	GetMovement(ctx context.Context, movementID id.ID) (*Movement, error)

	// ReversalExists reports whether a SALE_REVERSAL already points at movementID.
	ReversalExists(ctx context.Context, movementID id.ID) (bool, error)

	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int64, error)
	SumMovements(ctx context.Context, productID id.ID) (int64, error)
}
