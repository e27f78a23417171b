// Package alerts keeps the deduplicated set of stock-risk alerts: at most one
// active alert per product and type.
package alerts

import (
	"time"

	"stockledger/internal/core/id"
)

// Type is the alert category.
type Type string

const (
	TypeLowStock   Type = "LOW_STOCK"
	TypeOutOfStock Type = "OUT_OF_STOCK"
	TypeOverstock  Type = "OVERSTOCK"
	TypeExpiry     Type = "EXPIRY"
)

// IsValid reports whether t is a known alert type.
func (t Type) IsValid() bool {
	switch t {
	case TypeLowStock, TypeOutOfStock, TypeOverstock, TypeExpiry:
		return true
	}
	return false
}

// StockoutTypes are resolved together when stock recovers.
var StockoutTypes = []Type{TypeLowStock, TypeOutOfStock}

// Message is the alert body. It is stored as JSONB.
type Message struct {
	Text      string  `json:"text"`
	RiskScore float64 `json:"riskScore"`
}

// Alert is a stock-risk alert.
type Alert struct {
	ID             id.ID      `db:"id" json:"id"`
	ProductID      id.ID      `db:"product_id" json:"productId"`
	Type           Type       `db:"type" json:"type"`
	Message        Message    `db:"message" json:"message"`
	IsResolved     bool       `db:"is_resolved" json:"isResolved"`
	IsRead         bool       `db:"is_read" json:"isRead"`
	ResolutionNote string     `db:"resolution_note" json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
	ResolvedAt     *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// NewActive builds an unsaved active alert.
func NewActive(productID id.ID, t Type, msg Message, now time.Time) *Alert {
	return &Alert{
		ID:        id.New(),
		ProductID: productID,
		Type:      t,
		Message:   msg,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Outcome says what an ensure/upsert did.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeCreated
	OutcomeUpdated
)

// Filter narrows List.
type Filter struct {
	ProductID *id.ID
	Types     []Type
	Active    *bool
	Unread    *bool
	Limit     int
	Offset    int
}

// ReconcileResult reports the transitions made for one product.
type ReconcileResult struct {
	ProductID id.ID   `json:"productId"`
	Skipped   bool    `json:"skipped"`
	Created   []Alert `json:"created"`
	Updated   []Alert `json:"updated"`
	Resolved  []Alert `json:"resolved"`
}

// Changed reports whether any alert transitioned.
func (r *ReconcileResult) Changed() bool {
	return len(r.Created)+len(r.Updated)+len(r.Resolved) > 0
}

// SweepResult summarizes a daily sweep.
type SweepResult struct {
	Scanned  int           `json:"scanned"`
	Created  int           `json:"created"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}
