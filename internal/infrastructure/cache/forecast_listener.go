package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockledger/internal/core/id"
	"stockledger/pkg/logger"
)

// ForecastChannel is the NOTIFY channel raised by the forecast_runs trigger.
const ForecastChannel = "forecast_changed"

// Invalidator drops cached data for a product.
type Invalidator interface {
	Invalidate(ctx context.Context, productID id.ID) error
}

// ForecastListener evicts cached forecasts as soon as PostgreSQL announces a
// new run, so the TTL only bounds staleness when notifications are lost.
type ForecastListener struct {
	pool   *pgxpool.Pool
	target Invalidator

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewForecastListener creates a listener; call Start to begin.
func NewForecastListener(pool *pgxpool.Pool, target Invalidator) *ForecastListener {
	return &ForecastListener{pool: pool, target: target}
}

// Start launches the LISTEN loop. Calling Start twice is a no-op.
func (l *ForecastListener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
	logger.Info(l.ctx, "forecast cache listener started")
}

// Stop cancels the loop and waits for it to exit.
func (l *ForecastListener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
	logger.Info(context.Background(), "forecast cache listener stopped")
}

func (l *ForecastListener) listenLoop() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "acquire connection for LISTEN", "error", err)
			l.pause()
			continue
		}

		if _, err := conn.Exec(l.ctx, "LISTEN "+ForecastChannel); err != nil {
			logger.Error(l.ctx, "LISTEN failed", "channel", ForecastChannel, "error", err)
			conn.Release()
			l.pause()
			continue
		}

		l.waitForNotifications(conn)
		conn.Release()
	}
}

func (l *ForecastListener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		n, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if conn.Conn().IsClosed() {
				logger.Warn(l.ctx, "forecast listener connection lost", "error", err)
				return
			}
			continue
		}
		l.handle(n.Payload)
	}
}

func (l *ForecastListener) handle(payload string) {
	productID, err := id.Parse(strings.TrimSpace(payload))
	if err != nil {
		logger.Warn(l.ctx, "ignoring malformed forecast notification", "payload", payload)
		return
	}
	if err := l.target.Invalidate(l.ctx, productID); err != nil {
		logger.Warn(l.ctx, "forecast cache invalidation failed", "product_id", productID, "error", err)
		return
	}
	logger.Debug(l.ctx, "forecast cache invalidated", "product_id", productID)
}

func (l *ForecastListener) pause() {
	select {
	case <-l.ctx.Done():
	case <-time.After(time.Second):
	}
}
