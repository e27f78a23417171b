// Package events defines the notification port shared by the ledger and the
// alert manager, plus the payloads they emit.
package events

import (
	"context"
	"time"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// Event types.
const (
	TypeStockChanged  = "stock.changed"
	TypeAlertCreated  = "alert.created"
	TypeAlertResolved = "alert.resolved"
)

// Aggregate types.
const (
	AggregateProduct = "product"
	AggregateAlert   = "alert"
)

// Event is a fire-and-forget notification.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   id.ID
	Payload       any
}

// Publisher delivers events to external channels.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Emit publishes event and only logs a failure. Notification delivery never
// decides the outcome of a ledger or alert operation.
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Warn(ctx, "event publish failed",
			"event_type", event.Type,
			"aggregate_id", event.AggregateID,
			"error", err,
		)
	}
}

// StockChanged is the payload of TypeStockChanged.
type StockChanged struct {
	ProductID    id.ID     `json:"product_id"`
	MovementID   id.ID     `json:"movement_id"`
	MovementType string    `json:"movement_type"`
	Quantity     int64     `json:"quantity"`
	StockAfter   int64     `json:"stock_after"`
	CostPrice    string    `json:"cost_price"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// AlertChanged is the payload of the alert.* events.
type AlertChanged struct {
	AlertID        id.ID     `json:"alert_id"`
	ProductID      id.ID     `json:"product_id"`
	AlertType      string    `json:"alert_type"`
	Message        string    `json:"message"`
	RiskScore      float64   `json:"risk_score"`
	ResolutionNote string    `json:"resolution_note,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Recorder collects events in memory. It is a test double for Publisher.
type Recorder struct {
	Events []Event
	Err    error
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	if r.Err != nil {
		return r.Err
	}
	r.Events = append(r.Events, event)
	return nil
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
