package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"stockledger/pkg/logger"
)

// MsgPublisher is the part of *nats.Conn used for delivery.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSPublisher maps event types to subjects under a namespace, e.g.
// alert.created becomes inventory.alert.created.
type NATSPublisher struct {
	conn      MsgPublisher
	namespace string
}

// NewNATSPublisher creates a publisher.
func NewNATSPublisher(conn MsgPublisher, namespace string) *NATSPublisher {
	return &NATSPublisher{conn: conn, namespace: namespace}
}

// Subject returns the subject an event type is published on.
func (p *NATSPublisher) Subject(eventType string) string {
	if p.namespace == "" {
		return eventType
	}
	return p.namespace + "." + eventType
}

// Deliver publishes the raw payload. The outbox message id travels as
// Nats-Msg-Id so JetStream can drop redeliveries.
func (p *NATSPublisher) Deliver(_ context.Context, env *Envelope) error {
	msg := nats.NewMsg(p.Subject(env.Type))
	msg.Data = env.Raw
	msg.Header.Set(nats.MsgIdHdr, env.MessageID.String())
	msg.Header.Set("Aggregate-Type", env.AggregateType)
	msg.Header.Set("Aggregate-Id", env.AggregateID.String())

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// ConnectNATS dials the server with unlimited reconnects.
func ConnectNATS(ctx context.Context, url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info(ctx, "nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn(ctx, "nats disconnected", "error", err)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info(ctx, "nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}
