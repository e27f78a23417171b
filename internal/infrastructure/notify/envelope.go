// Package notify delivers outbox events to external channels: NATS subjects
// for downstream services and email for administrators.
package notify

import (
	"encoding/json"
	"fmt"

	"stockledger/internal/core/id"
	"stockledger/internal/infrastructure/storage/postgres"
)

// Envelope is an outbox message decoded for delivery.
type Envelope struct {
	MessageID     id.ID
	Type          string
	AggregateType string
	AggregateID   id.ID
	Raw           []byte
	Fields        map[string]any
}

// Decode parses an outbox row. The payload must be a JSON object.
func Decode(msg *postgres.OutboxMessage) (*Envelope, error) {
	fields := map[string]any{}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &fields); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", msg.EventType, err)
		}
	}
	return &Envelope{
		MessageID:     msg.ID,
		Type:          msg.EventType,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Raw:           msg.Payload,
		Fields:        fields,
	}, nil
}

// Activation returns the variables exposed to broadcast rules: the payload
// fields plus type, aggregate_type and aggregate_id.
func (e *Envelope) Activation() map[string]any {
	out := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		out[k] = v
	}
	out["type"] = e.Type
	out["aggregate_type"] = e.AggregateType
	out["aggregate_id"] = e.AggregateID.String()
	return out
}

// String reads a string field, empty when missing.
func (e *Envelope) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Float reads a numeric field, zero when missing.
func (e *Envelope) Float(key string) float64 {
	f, _ := e.Fields[key].(float64)
	return f
}
