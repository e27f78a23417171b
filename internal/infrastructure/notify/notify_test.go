package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/config"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/events"
	"stockledger/internal/infrastructure/storage/postgres"
)

func outboxMessage(t *testing.T, eventType string, payload any) *postgres.OutboxMessage {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &postgres.OutboxMessage{
		ID:            id.New(),
		AggregateType: events.AggregateAlert,
		AggregateID:   id.New(),
		EventType:     eventType,
		Payload:       body,
	}
}

func alertPayload(score float64) events.AlertChanged {
	return events.AlertChanged{
		AlertID:    id.New(),
		ProductID:  id.New(),
		AlertType:  "OUT_OF_STOCK",
		Message:    "Widget (SKU-1): out of stock",
		RiskScore:  score,
		OccurredAt: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

type fakeConn struct {
	msgs []*nats.Msg
	err  error
}

func (c *fakeConn) PublishMsg(m *nats.Msg) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

type recordingSink struct {
	got []*Envelope
	err error
}

func (s *recordingSink) Deliver(_ context.Context, env *Envelope) error {
	s.got = append(s.got, env)
	return s.err
}

func TestPolicy_DefaultRule(t *testing.T) {
	p, err := NewPolicy(config.DefaultBroadcastRule)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		msg  *postgres.OutboxMessage
		want bool
	}{
		{"high risk created", outboxMessage(t, events.TypeAlertCreated, alertPayload(90)), true},
		{"threshold is inclusive", outboxMessage(t, events.TypeAlertCreated, alertPayload(50)), true},
		{"low risk created", outboxMessage(t, events.TypeAlertCreated, alertPayload(30)), false},
		{"resolved", outboxMessage(t, events.TypeAlertResolved, alertPayload(90)), false},
		{"stock change has no score", outboxMessage(t, events.TypeStockChanged, events.StockChanged{StockAfter: 3}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Matches(ctx, env))
		})
	}
}

func TestPolicy_IntegerLiteralComparesWithScore(t *testing.T) {
	p, err := NewPolicy(`event.type == "alert.created" && event.risk_score >= 50`)
	require.NoError(t, err)

	env, err := Decode(outboxMessage(t, events.TypeAlertCreated, alertPayload(60)))
	require.NoError(t, err)
	assert.True(t, p.Matches(context.Background(), env))
}

func TestPolicy_RejectsBadRules(t *testing.T) {
	_, err := NewPolicy(`event.type ==`)
	assert.Error(t, err)

	_, err = NewPolicy(`"alert"`)
	assert.Error(t, err)
}

func TestNATSPublisher_Deliver(t *testing.T) {
	conn := &fakeConn{}
	pub := NewNATSPublisher(conn, "inventory")
	msg := outboxMessage(t, events.TypeAlertCreated, alertPayload(90))
	env, err := Decode(msg)
	require.NoError(t, err)

	require.NoError(t, pub.Deliver(context.Background(), env))
	require.Len(t, conn.msgs, 1)

	got := conn.msgs[0]
	assert.Equal(t, "inventory.alert.created", got.Subject)
	assert.Equal(t, msg.Payload, got.Data)
	assert.Equal(t, msg.ID.String(), got.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "alert", got.Header.Get("Aggregate-Type"))
}

func TestNATSPublisher_Subjects(t *testing.T) {
	pub := NewNATSPublisher(nil, "inventory")
	assert.Equal(t, "inventory.stock.changed", pub.Subject(events.TypeStockChanged))
	assert.Equal(t, "inventory.alert.resolved", pub.Subject(events.TypeAlertResolved))
	assert.Equal(t, "alert.created", NewNATSPublisher(nil, "").Subject(events.TypeAlertCreated))
}

func TestEmailBroadcaster_Compose(t *testing.T) {
	b := NewEmailBroadcaster("smtp.local:25", "alerts@stockledger.local", []string{"ops@example.com", "lead@example.com"})
	b.now = func() time.Time { return time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC) }

	var sentTo []string
	var sent string
	b.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.local:25", addr)
		assert.Equal(t, "alerts@stockledger.local", from)
		sentTo = to
		sent = string(msg)
		return nil
	}

	env, err := Decode(outboxMessage(t, events.TypeAlertCreated, alertPayload(90)))
	require.NoError(t, err)
	require.NoError(t, b.Deliver(context.Background(), env))

	assert.Equal(t, []string{"ops@example.com", "lead@example.com"}, sentTo)
	assert.Contains(t, sent, "Subject: [stockledger] OUT_OF_STOCK created\r\n")
	assert.Contains(t, sent, "To: ops@example.com, lead@example.com\r\n")
	assert.Contains(t, sent, "Risk score: 90\r\n")
	assert.True(t, strings.HasSuffix(sent, "Alert: "+env.String("alert_id")+"\r\n"))
}

func TestEmailBroadcaster_NoRecipients(t *testing.T) {
	b := NewEmailBroadcaster("smtp.local:25", "a@b", nil)
	b.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called")
		return nil
	}
	env, err := Decode(outboxMessage(t, events.TypeAlertCreated, alertPayload(90)))
	require.NoError(t, err)
	assert.NoError(t, b.Deliver(context.Background(), env))
}

func TestDispatcher_Handle(t *testing.T) {
	policy, err := NewPolicy(config.DefaultBroadcastRule)
	require.NoError(t, err)

	t.Run("primary and matching broadcast", func(t *testing.T) {
		primary, mail := &recordingSink{}, &recordingSink{}
		d := NewDispatcher(primary, mail, policy)

		require.NoError(t, d.Handle(context.Background(), outboxMessage(t, events.TypeAlertCreated, alertPayload(80))))
		assert.Len(t, primary.got, 1)
		assert.Len(t, mail.got, 1)
	})

	t.Run("broadcast filtered by policy", func(t *testing.T) {
		primary, mail := &recordingSink{}, &recordingSink{}
		d := NewDispatcher(primary, mail, policy)

		require.NoError(t, d.Handle(context.Background(), outboxMessage(t, events.TypeAlertResolved, alertPayload(80))))
		assert.Len(t, primary.got, 1)
		assert.Empty(t, mail.got)
	})

	t.Run("primary failure is returned for retry", func(t *testing.T) {
		primary, mail := &recordingSink{err: errors.New("nats down")}, &recordingSink{}
		d := NewDispatcher(primary, mail, policy)

		err := d.Handle(context.Background(), outboxMessage(t, events.TypeAlertCreated, alertPayload(80)))
		assert.ErrorContains(t, err, "nats down")
		assert.Empty(t, mail.got)
	})

	t.Run("broadcast failure is swallowed", func(t *testing.T) {
		primary, mail := &recordingSink{}, &recordingSink{err: errors.New("smtp down")}
		d := NewDispatcher(primary, mail, policy)

		assert.NoError(t, d.Handle(context.Background(), outboxMessage(t, events.TypeAlertCreated, alertPayload(80))))
	})

	t.Run("malformed payload", func(t *testing.T) {
		d := NewDispatcher(&recordingSink{}, nil, nil)
		msg := outboxMessage(t, events.TypeAlertCreated, alertPayload(80))
		msg.Payload = []byte("not json")
		assert.Error(t, d.Handle(context.Background(), msg))
	})
}
