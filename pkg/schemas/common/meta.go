package common

import (
	"time"

	"github.com/google/uuid"
)

// Meta carries the message attributes every agentic service stamps on queue
// traffic it emits. Queue bodies stay bare contract JSON; pkg/pubsub maps
// Meta onto AMQP message properties in both directions.
type Meta struct {
	// Unique message ID
	ID string `json:"id"`
	// Trace / request correlation ID; equals ID when the emitter had none
	CorrelationID string `json:"correlation_id,omitempty"`
	// Emitting service, e.g. "agentic-engine"
	Producer string `json:"producer,omitempty"`
	// Timestamp when the message was emitted
	Time time.Time `json:"time"`
	// Message name and version, e.g. "flows.outgoing.v1"
	Type string `json:"type"`
}

// NewMeta stamps fresh attributes for one outbound message.
func NewMeta(msgType, producer string) Meta {
	id := uuid.NewString()
	return Meta{
		ID:            id,
		CorrelationID: id,
		Producer:      producer,
		Time:          time.Now().UTC(),
		Type:          msgType,
	}
}

// WithCorrelation returns a copy of m correlated to an upstream message.
// Empty ids are ignored so callers can pass through whatever they received.
func (m Meta) WithCorrelation(correlationID string) Meta {
	if correlationID != "" {
		m.CorrelationID = correlationID
	}
	return m
}
