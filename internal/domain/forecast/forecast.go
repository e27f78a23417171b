// Package forecast holds the read-only demand forecast model produced by an
// external forecasting job.
package forecast

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/id"
)

// Point is a single forecasted period.
type Point struct {
	Period    time.Time `db:"period" json:"period"`
	Predicted float64   `db:"predicted" json:"predicted"`
	Lower95   float64   `db:"lower95" json:"lower95"`
	Upper95   float64   `db:"upper95" json:"upper95"`
}

// Run is one forecasting run for a product.
type Run struct {
	ID        id.ID     `db:"id" json:"id"`
	ProductID id.ID     `db:"product_id" json:"productId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Points    []Point   `db:"-" json:"points"`
}

// HasPoints reports whether the run carries any prediction.
func (r *Run) HasPoints() bool {
	return r != nil && len(r.Points) > 0
}

// SortPoints orders points chronologically in place.
func (r *Run) SortPoints() {
	sort.SliceStable(r.Points, func(i, j int) bool {
		return r.Points[i].Period.Before(r.Points[j].Period)
	})
}

// Provider returns the latest run per product.
// A nil run with nil error means no forecast exists yet; callers skip.
type Provider interface {
	Latest(ctx context.Context, productID id.ID) (*Run, error)
}
