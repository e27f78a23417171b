// Package main is the entry point for the stockledger background worker:
// outbox delivery, the risk scheduler and the sales consumer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockledger/internal/app"
	"stockledger/internal/config"
	"stockledger/internal/infrastructure/messaging"
	"stockledger/internal/infrastructure/notify"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/scheduler"
	"stockledger/pkg/logger"
)

const (
	cleanupInterval = time.Hour
	outboxRetention = 7 * 24 * time.Hour
	poolStatsEvery  = 5 * time.Minute
	natsClientName  = "stockledger-worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log.WithComponent("worker"))

	log.Info("starting stockledger worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	dispatcher, closeSinks, err := newDispatcher(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize notification sinks", "error", err)
	}
	defer closeSinks()

	relay := postgres.NewOutboxRelay(a.TxManager, cfg.OutboxBatchSize, dispatcher)
	sched := scheduler.New(a.Alerts, a.Products, scheduler.Config{
		RiskInterval: cfg.RiskSweepInterval,
		ProductPause: cfg.SweepProductPause,
		DailyHour:    cfg.DailySweepHour,
	}, scheduler.WithMetrics(a.Metrics))

	if a.Listener != nil {
		a.Listener.Start(ctx)
	}

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(logger.WithLogger(ctx, log.WithComponent(name)))
		}()
	}

	run("outbox", func(ctx context.Context) { runOutbox(ctx, cfg, relay, a) })
	run("scheduler", sched.Run)

	if len(cfg.KafkaBrokers) > 0 {
		reader := messaging.NewReader(cfg.KafkaBrokers, cfg.KafkaOrdersTopic, cfg.KafkaGroupID)
		listener := messaging.NewSaleListener(reader, a.Ledger, a.TxManager)
		run("sales", func(ctx context.Context) {
			if err := listener.Run(ctx); err != nil {
				logger.Error(ctx, "sales listener stopped", "error", err)
			}
		})
	} else {
		log.Warn("KAFKA_BROKERS not set, sales consumer disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// newDispatcher builds the outbox handler. NATS is the primary channel;
// email goes to admins for events the broadcast rule selects.
func newDispatcher(ctx context.Context, cfg *config.Config) (*notify.Dispatcher, func(), error) {
	closeFn := func() {}

	var primary notify.Sink
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(ctx, cfg.NATSURL, natsClientName)
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() { _ = nc.Drain() }
		primary = notify.NewNATSPublisher(nc, cfg.NATSSubjectNS)
	} else {
		logger.Warn(ctx, "NATS_URL not set, events are not published to the bus")
	}

	var broadcast notify.Sink
	var policy *notify.Policy
	if cfg.SMTPAddr != "" && len(cfg.AlertAdminEmails) > 0 {
		p, err := notify.NewPolicy(cfg.AlertBroadcastRule)
		if err != nil {
			return nil, closeFn, fmt.Errorf("alert broadcast rule: %w", err)
		}
		policy = p
		broadcast = notify.NewEmailBroadcaster(cfg.SMTPAddr, cfg.SMTPFrom, cfg.AlertAdminEmails)
	}

	return notify.NewDispatcher(primary, broadcast, policy), closeFn, nil
}

// runOutbox polls the outbox until ctx is done. Failed messages past their
// retry budget are parked and old published rows purged once an hour.
func runOutbox(ctx context.Context, cfg *config.Config, relay *postgres.OutboxRelay, a *app.App) {
	ticker := time.NewTicker(cfg.OutboxPollInterval)
	defer ticker.Stop()

	cleanupTicker := time.NewTicker(cleanupInterval)
	defer cleanupTicker.Stop()

	statsTicker := time.NewTicker(poolStatsEvery)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := relay.ProcessBatch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error(ctx, "outbox batch failed", "error", err)
				}
				continue
			}
			if n > 0 {
				a.Metrics.OutboxDelivered(n)
				logger.Debug(ctx, "outbox batch delivered", "count", n)
			}
		case <-cleanupTicker.C:
			if n, err := relay.MoveToDLQ(ctx); err != nil {
				logger.Error(ctx, "outbox dlq move failed", "error", err)
			} else if n > 0 {
				logger.Warn(ctx, "outbox messages parked", "count", n)
			}
			if n, err := relay.PurgePublished(ctx, outboxRetention); err != nil {
				logger.Error(ctx, "outbox purge failed", "error", err)
			} else if n > 0 {
				logger.Info(ctx, "outbox purged", "count", n)
			}
		case <-statsTicker.C:
			a.Pool.LogStats(ctx)
		}
	}
}
