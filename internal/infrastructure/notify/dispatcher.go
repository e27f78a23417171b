package notify

import (
	"context"
	"fmt"

	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

// Sink delivers a decoded event somewhere.
type Sink interface {
	Deliver(ctx context.Context, env *Envelope) error
}

// Dispatcher is the outbox handler of the worker. The primary sink must
// succeed or the message is retried; the broadcast sink is best effort and
// only sees events the policy selects.
type Dispatcher struct {
	primary   Sink
	broadcast Sink
	policy    *Policy
}

var _ postgres.OutboxHandler = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. Any argument may be nil.
func NewDispatcher(primary Sink, broadcast Sink, policy *Policy) *Dispatcher {
	return &Dispatcher{primary: primary, broadcast: broadcast, policy: policy}
}

// Handle implements postgres.OutboxHandler.
func (d *Dispatcher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	env, err := Decode(msg)
	if err != nil {
		return err
	}

	if d.primary != nil {
		if err := d.primary.Deliver(ctx, env); err != nil {
			return fmt.Errorf("deliver %s: %w", env.Type, err)
		}
	}

	if d.broadcast != nil && d.policy != nil && d.policy.Matches(ctx, env) {
		if err := d.broadcast.Deliver(ctx, env); err != nil {
			logger.Warn(ctx, "alert broadcast failed",
				"message_id", env.MessageID,
				"event_type", env.Type,
				"error", err,
			)
		}
	}
	return nil
}
