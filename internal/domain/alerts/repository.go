package alerts

import (
	"context"
	"time"

	"stockledger/internal/core/id"
)

// Repository persists alerts. Dedup is enforced by the store: a unique index
// on (product_id, type) over unresolved rows.
type Repository interface {
	// EnsureActive inserts a unless an active alert of the same product and
	// type exists. It returns the active alert and OutcomeCreated or
	// OutcomeUnchanged. An existing alert is not modified.
	EnsureActive(ctx context.Context, a *Alert) (*Alert, Outcome, error)

	// UpsertActive inserts a or overwrites the message of the existing active
	// alert. OutcomeUnchanged when the stored message already equals a.Message.
	UpsertActive(ctx context.Context, a *Alert) (*Alert, Outcome, error)

	// ResolveActive resolves the active alerts of the given types and returns
	// the rows it changed.
	ResolveActive(ctx context.Context, productID id.ID, types []Type, note string, at time.Time) ([]Alert, error)

	GetByID(ctx context.Context, alertID id.ID) (*Alert, error)
	List(ctx context.Context, filter Filter) ([]Alert, int64, error)
	MarkRead(ctx context.Context, alertID id.ID, at time.Time) (*Alert, error)
}
