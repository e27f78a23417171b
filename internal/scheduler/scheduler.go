// Package scheduler drives periodic risk evaluation and the daily stock sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alerts"
	"stockledger/pkg/logger"
)

var tracer = otel.Tracer("stockledger/scheduler")

// Pass kinds, used as metric labels.
const (
	KindRiskPass   = "risk_pass"
	KindDailySweep = "daily_sweep"
)

// AlertRunner is the alert manager as seen by the scheduler.
type AlertRunner interface {
	EvaluateAndReconcile(ctx context.Context, productID id.ID) (*alerts.ReconcileResult, error)
	RunDailySweep(ctx context.Context) (*alerts.SweepResult, error)
}

// ProductLister lists every product ID.
type ProductLister interface {
	ListIDs(ctx context.Context) ([]id.ID, error)
}

// Metrics receives pass durations.
type Metrics interface {
	ObserveSweep(kind string, d time.Duration, failed int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveSweep(string, time.Duration, int) {}

// Config controls cadence.
type Config struct {
	// RiskInterval is the time between risk passes.
	RiskInterval time.Duration
	// ProductPause is the minimum gap between two product evaluations.
	ProductPause time.Duration
	// DailyHour is the UTC hour of the daily sweep.
	DailyHour int
}

// PassResult summarizes one risk pass.
type PassResult struct {
	Evaluated int           `json:"evaluated"`
	Skipped   int           `json:"skipped"`
	Changed   int           `json:"changed"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Scheduler runs passes sequentially; a pass never overlaps the next one.
type Scheduler struct {
	alerts   AlertRunner
	products ProductLister
	metrics  Metrics
	cfg      Config
	limiter  *rate.Limiter
	now      func() time.Time
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler.
func New(alertRunner AlertRunner, products ProductLister, cfg Config, opts ...Option) *Scheduler {
	limit := rate.Inf
	if cfg.ProductPause > 0 {
		limit = rate.Every(cfg.ProductPause)
	}
	s := &Scheduler{
		alerts:   alertRunner,
		products: products,
		metrics:  nopMetrics{},
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled. The first risk pass starts one interval
// after Run is called.
func (s *Scheduler) Run(ctx context.Context) {
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: appctx.SystemUser, Source: "scheduler"})
	ctx = logger.WithLogger(ctx, logger.Default().WithComponent("scheduler"))

	riskTicker := time.NewTicker(s.cfg.RiskInterval)
	defer riskTicker.Stop()

	next := NextDailyRun(s.now(), s.cfg.DailyHour)
	dailyTimer := time.NewTimer(next.Sub(s.now()))
	defer dailyTimer.Stop()

	logger.Info(ctx, "scheduler started",
		"risk_interval", s.cfg.RiskInterval.String(),
		"next_daily_sweep", next,
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "scheduler stopped")
			return

		case <-riskTicker.C:
			if _, err := s.RunRiskPass(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "risk pass failed", "error", err)
			}

		case <-dailyTimer.C:
			if _, err := s.RunDailySweep(ctx); err != nil && ctx.Err() == nil {
				logger.Error(ctx, "daily sweep failed", "error", err)
			}
			next = NextDailyRun(s.now(), s.cfg.DailyHour)
			dailyTimer.Reset(next.Sub(s.now()))
		}
	}
}

// RunRiskPass evaluates every product once. Product failures are logged and
// counted; only listing products or cancellation aborts the pass.
func (s *Scheduler) RunRiskPass(ctx context.Context) (*PassResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.risk_pass")
	defer span.End()
	ctx = appctx.WithTrace(ctx, appctx.FromSpan(ctx))

	started := time.Now()
	result := &PassResult{}

	ids, err := s.products.ListIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list products")
		return nil, fmt.Errorf("list products: %w", err)
	}

	for _, productID := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			result.Duration = time.Since(started)
			return result, err
		}

		rec, err := s.alerts.EvaluateAndReconcile(ctx, productID)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				result.Duration = time.Since(started)
				return result, ctx.Err()
			}
			result.Failed++
			logger.Error(ctx, "risk evaluation failed", "product_id", productID, "error", err)
		case rec.Skipped:
			result.Skipped++
		default:
			result.Evaluated++
			if rec.Changed() {
				result.Changed++
			}
		}
	}

	result.Duration = time.Since(started)
	s.metrics.ObserveSweep(KindRiskPass, result.Duration, result.Failed)
	span.SetAttributes(
		attribute.Int("products", len(ids)),
		attribute.Int("changed", result.Changed),
		attribute.Int("failed", result.Failed),
	)
	logger.Info(ctx, "risk pass finished",
		"products", len(ids),
		"evaluated", result.Evaluated,
		"skipped", result.Skipped,
		"changed", result.Changed,
		"failed", result.Failed,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// RunDailySweep runs the forecast-independent stock sweep.
func (s *Scheduler) RunDailySweep(ctx context.Context) (*alerts.SweepResult, error) {
	ctx, span := tracer.Start(ctx, "scheduler.daily_sweep")
	defer span.End()
	ctx = appctx.WithTrace(ctx, appctx.FromSpan(ctx))

	res, err := s.alerts.RunDailySweep(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "daily sweep")
		return res, err
	}
	s.metrics.ObserveSweep(KindDailySweep, res.Duration, res.Failed)
	span.SetAttributes(
		attribute.Int("scanned", res.Scanned),
		attribute.Int("created", res.Created),
		attribute.Int("failed", res.Failed),
	)
	return res, nil
}

// NextDailyRun returns the next occurrence of hour:00 UTC strictly after now.
func NextDailyRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
