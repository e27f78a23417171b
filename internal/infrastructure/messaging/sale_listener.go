// Package messaging consumes order events from Kafka and books them as sales.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/ledger"
	"stockledger/pkg/logger"
)

// SaleUser is recorded as the author of movements booked from order events.
const SaleUser = "kafka:orders"

// OrderEvent is the orders.created message body.
type OrderEvent struct {
	OrderID    string      `json:"order_id"`
	Lines      []OrderLine `json:"lines"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// OrderLine is one sold product.
type OrderLine struct {
	ProductID id.ID `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// MessageReader is the part of *kafka.Reader the listener uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SaleApplier books one movement.
type SaleApplier interface {
	ApplyMovement(ctx context.Context, in ledger.MovementInput) (*ledger.MovementResult, error)
}

// SaleListener turns order events into SALE movements. All lines of an order
// are booked in one transaction; a line the ledger rejects (not enough stock,
// unknown product, bad quantity) is logged and skipped. Any other failure
// rolls the order back and the message is retried.
type SaleListener struct {
	reader    MessageReader
	ledger    SaleApplier
	txManager tx.Manager
	backoff   time.Duration
}

// NewReader creates a consumer-group reader for topic.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
}

// NewSaleListener creates a listener.
func NewSaleListener(reader MessageReader, applier SaleApplier, txManager tx.Manager) *SaleListener {
	return &SaleListener{
		reader:    reader,
		ledger:    applier,
		txManager: txManager,
		backoff:   time.Second,
	}
}

// Run consumes until ctx is cancelled.
func (l *SaleListener) Run(ctx context.Context) error {
	ctx = logger.WithLogger(ctx, logger.Default().WithComponent("sale-listener"))
	defer func() {
		if err := l.reader.Close(); err != nil {
			logger.Warn(ctx, "close kafka reader", "error", err)
		}
	}()

	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch order event: %w", err)
		}

		if !l.handleWithRetry(ctx, msg) {
			return nil
		}

		if err := l.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "commit order event", "offset", msg.Offset, "error", err)
		}
	}
}

// handleWithRetry retries msg until it is handled. The reader only moves
// forward, so skipping a failed message would later commit past it. Returns
// false when ctx is cancelled first.
func (l *SaleListener) handleWithRetry(ctx context.Context, msg kafka.Message) bool {
	for {
		err := l.Handle(ctx, msg)
		if err == nil {
			return true
		}
		logger.Error(ctx, "order event failed, retrying",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.backoff):
		}
	}
}

// Handle books one message. Undecodable messages are logged and acknowledged.
func (l *SaleListener) Handle(ctx context.Context, msg kafka.Message) error {
	var ev OrderEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		logger.Warn(ctx, "dropping malformed order event", "offset", msg.Offset, "error", err)
		return nil
	}
	ctx = appctx.WithUser(ctx, &appctx.UserContext{UserID: SaleUser, Source: "kafka"})
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())

	booked := 0
	err := l.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		booked = 0
		for _, i := range lineOrder(ev.Lines) {
			line := ev.Lines[i]
			_, err := l.ledger.ApplyMovement(ctx, ledger.MovementInput{
				ProductID: line.ProductID,
				Type:      ledger.MovementSale,
				Quantity:  line.Quantity,
				UserID:    SaleUser,
				Notes:     "order " + ev.OrderID,
			})
			if err == nil {
				booked++
				continue
			}
			if !isLineRejection(err) {
				return fmt.Errorf("order %s line %d: %w", ev.OrderID, i, err)
			}
			logger.Warn(ctx, "order line skipped",
				"order_id", ev.OrderID,
				"product_id", line.ProductID,
				"quantity", line.Quantity,
				"error", err,
			)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "order event booked", "order_id", ev.OrderID, "lines", len(ev.Lines), "booked", booked)
	return nil
}

// lineOrder returns line indexes sorted by product ID so concurrent orders
// and receipts lock product rows in the same order.
func lineOrder(lines []OrderLine) []int {
	idx := make([]int, len(lines))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return id.Less(lines[idx[a]].ProductID, lines[idx[b]].ProductID)
	})
	return idx
}

func isLineRejection(err error) bool {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case apperror.CodeInsufficientStock, apperror.CodeNotFound,
		apperror.CodeValidation, apperror.CodeInvalidQuantity:
		return true
	}
	return false
}
