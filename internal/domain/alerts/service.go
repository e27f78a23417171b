package alerts

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/events"
	"stockledger/internal/domain/forecast"
	"stockledger/internal/domain/product"
	"stockledger/internal/domain/risk"
	"stockledger/pkg/logger"
)

// DefaultHighWaterMark is the stock level at which the daily sweep raises
// OVERSTOCK regardless of forecasts.
const DefaultHighWaterMark int64 = 1000

const (
	defaultListLimit = 50
	maxListLimit     = 500
	sweepPageSize    = 200
)

// Metrics receives alert transitions.
type Metrics interface {
	AlertTransition(alertType, transition string)
}

type nopMetrics struct{}

func (nopMetrics) AlertTransition(string, string) {}

// Service reconciles alerts with current risk.
type Service struct {
	repo          Repository
	products      product.Reader
	forecasts     forecast.Provider
	txManager     tx.Manager
	publisher     events.Publisher
	metrics       Metrics
	highWaterMark int64
	now           func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithPublisher sets the notification port.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHighWaterMark overrides DefaultHighWaterMark.
func WithHighWaterMark(mark int64) Option {
	return func(s *Service) {
		if mark > 0 {
			s.highWaterMark = mark
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an alert service.
func NewService(repo Repository, products product.Reader, forecasts forecast.Provider, txManager tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		products:      products,
		forecasts:     forecasts,
		txManager:     txManager,
		metrics:       nopMetrics{},
		highWaterMark: DefaultHighWaterMark,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EvaluateAndReconcile scores a product against its latest forecast and
// brings its alerts in line. Without a forecast nothing changes.
func (s *Service) EvaluateAndReconcile(ctx context.Context, productID id.ID) (*ReconcileResult, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	run, err := s.forecasts.Latest(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load forecast: %w", err)
	}
	result := &ReconcileResult{ProductID: productID}
	if !run.HasPoints() {
		result.Skipped = true
		logger.Debug(ctx, "no forecast, skipping evaluation", "product_id", productID)
		return result, nil
	}

	now := s.now()
	ev := risk.Evaluate(*p, run.Points, now)

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if p.ExpiryDate != nil {
			a, outcome, err := s.repo.UpsertActive(ctx, NewActive(p.ID, TypeExpiry, messageFor(p, ev.Expiry.Assessment), now))
			if err != nil {
				return fmt.Errorf("upsert expiry alert: %w", err)
			}
			s.record(ctx, result, a, outcome)
		}

		switch ev.Stockout.Level {
		case risk.LevelHigh:
			if err := s.ensure(ctx, result, NewActive(p.ID, TypeOutOfStock, messageFor(p, ev.Stockout.Assessment), now)); err != nil {
				return err
			}
		case risk.LevelMedium:
			if err := s.ensure(ctx, result, NewActive(p.ID, TypeLowStock, messageFor(p, ev.Stockout.Assessment), now)); err != nil {
				return err
			}
		default:
			if err := s.resolve(ctx, result, p.ID, StockoutTypes, "stockout risk subsided", now); err != nil {
				return err
			}
		}

		if ev.Overstock.Level != risk.LevelLow {
			return s.ensure(ctx, result, NewActive(p.ID, TypeOverstock, messageFor(p, ev.Overstock), now))
		}
		return s.resolve(ctx, result, p.ID, []Type{TypeOverstock}, "overstock risk subsided", now)
	})
	if err != nil {
		return nil, err
	}

	if result.Changed() {
		logger.Info(ctx, "alerts reconciled",
			"product_id", productID,
			"created", len(result.Created),
			"updated", len(result.Updated),
			"resolved", len(result.Resolved),
			"stockout_score", ev.Stockout.Score,
			"overstock_score", ev.Overstock.Score,
		)
	}
	return result, nil
}

// ResolveForReorder resolves LOW_STOCK and OUT_OF_STOCK for products a
// purchase order was just placed for.
func (s *Service) ResolveForReorder(ctx context.Context, productIDs []id.ID, orderRef string) ([]Alert, error) {
	result := &ReconcileResult{}
	note := "reorder placed: " + orderRef
	now := s.now()

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		for _, pid := range productIDs {
			if err := s.resolve(ctx, result, pid, StockoutTypes, note, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(result.Resolved) > 0 {
		logger.Info(ctx, "alerts resolved by reorder", "order", orderRef, "count", len(result.Resolved))
	}
	return result.Resolved, nil
}

// List returns alerts matching filter, newest first.
func (s *Service) List(ctx context.Context, filter Filter) ([]Alert, int64, error) {
	for _, t := range filter.Types {
		if !t.IsValid() {
			return nil, 0, apperror.NewValidation(fmt.Sprintf("unknown alert type %q", t))
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, alertID id.ID) (*Alert, error) {
	return s.repo.GetByID(ctx, alertID)
}

// MarkRead flags an alert as seen by an operator. Idempotent.
func (s *Service) MarkRead(ctx context.Context, alertID id.ID) (*Alert, error) {
	return s.repo.MarkRead(ctx, alertID, s.now())
}

func (s *Service) ensure(ctx context.Context, result *ReconcileResult, a *Alert) error {
	stored, outcome, err := s.repo.EnsureActive(ctx, a)
	if err != nil {
		return fmt.Errorf("ensure %s alert: %w", a.Type, err)
	}
	s.record(ctx, result, stored, outcome)
	return nil
}

func (s *Service) resolve(ctx context.Context, result *ReconcileResult, productID id.ID, types []Type, note string, now time.Time) error {
	resolved, err := s.repo.ResolveActive(ctx, productID, types, note, now)
	if err != nil {
		return fmt.Errorf("resolve alerts: %w", err)
	}
	for i := range resolved {
		result.Resolved = append(result.Resolved, resolved[i])
		s.notify(ctx, events.TypeAlertResolved, &resolved[i])
		s.metrics.AlertTransition(string(resolved[i].Type), "resolved")
	}
	return nil
}

// record books a transition. Only creation notifies; in-place updates do not.
func (s *Service) record(ctx context.Context, result *ReconcileResult, a *Alert, outcome Outcome) {
	switch outcome {
	case OutcomeCreated:
		result.Created = append(result.Created, *a)
		s.notify(ctx, events.TypeAlertCreated, a)
		s.metrics.AlertTransition(string(a.Type), "created")
	case OutcomeUpdated:
		result.Updated = append(result.Updated, *a)
		s.metrics.AlertTransition(string(a.Type), "updated")
	}
}

func (s *Service) notify(ctx context.Context, eventType string, a *Alert) {
	events.Emit(ctx, s.publisher, events.Event{
		Type:          eventType,
		AggregateType: events.AggregateAlert,
		AggregateID:   a.ID,
		Payload: events.AlertChanged{
			AlertID:        a.ID,
			ProductID:      a.ProductID,
			AlertType:      string(a.Type),
			Message:        a.Message.Text,
			RiskScore:      a.Message.RiskScore,
			ResolutionNote: a.ResolutionNote,
			OccurredAt:     s.now(),
		},
	})
}

func messageFor(p *product.Product, a risk.Assessment) Message {
	return Message{
		Text:      fmt.Sprintf("%s: %s", p.Label(), a.Reason),
		RiskScore: a.Score,
	}
}
