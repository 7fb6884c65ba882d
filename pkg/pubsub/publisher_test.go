package pubsub

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/schemas/common"
	flows "github.com/agentichq/agentic-events/pkg/schemas/flows/v1"
)

func TestPublishingFor_FillsGaps(t *testing.T) {
	pub := publishingFor(flows.OutgoingMeta, common.Meta{}, "agentic-engine", []byte(`{}`))

	if pub.MessageId == "" {
		t.Error("MessageId was not generated")
	}
	if pub.CorrelationId != pub.MessageId {
		t.Errorf("CorrelationId = %q, want the MessageId %q", pub.CorrelationId, pub.MessageId)
	}
	if pub.Type != flows.OutgoingMeta.EventType {
		t.Errorf("Type = %q, want %q", pub.Type, flows.OutgoingMeta.EventType)
	}
	if pub.AppId != "agentic-engine" {
		t.Errorf("AppId = %q, want the configured producer", pub.AppId)
	}
	if pub.Timestamp.IsZero() {
		t.Error("Timestamp was not set")
	}
	if pub.DeliveryMode != amqp.Persistent {
		t.Errorf("DeliveryMode = %d, want persistent", pub.DeliveryMode)
	}
	if pub.ContentType != "application/json" {
		t.Errorf("ContentType = %q", pub.ContentType)
	}
}

func TestPublishingFor_KeepsCallerMeta(t *testing.T) {
	at := time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC)
	meta := common.Meta{
		ID:            "msg-1",
		CorrelationID: "corr-9",
		Producer:      "agentic-gateway",
		Time:          at,
		Type:          "custom.type",
	}

	pub := publishingFor(flows.OutgoingMeta, meta, "agentic-engine", nil)

	if pub.MessageId != "msg-1" || pub.CorrelationId != "corr-9" || pub.Type != "custom.type" {
		t.Errorf("caller meta was overridden: %+v", pub)
	}
	if pub.AppId != "agentic-gateway" {
		t.Errorf("AppId = %q, want the caller's producer", pub.AppId)
	}
	if !pub.Timestamp.Equal(at) {
		t.Errorf("Timestamp = %v, want %v", pub.Timestamp, at)
	}
}

func TestMetaFromDelivery_RoundTrip(t *testing.T) {
	meta := common.NewMeta(flows.OutgoingMeta.EventType, "agentic-engine")
	pub := publishingFor(flows.OutgoingMeta, meta, "", nil)

	got := MetaFromDelivery(amqp.Delivery{
		MessageId:     pub.MessageId,
		CorrelationId: pub.CorrelationId,
		AppId:         pub.AppId,
		Timestamp:     pub.Timestamp,
		Type:          pub.Type,
	})

	if got.ID != meta.ID || got.CorrelationID != meta.CorrelationID {
		t.Errorf("ids = %q/%q, want %q/%q", got.ID, got.CorrelationID, meta.ID, meta.CorrelationID)
	}
	if got.Producer != meta.Producer || got.Type != meta.Type {
		t.Errorf("producer/type = %q/%q, want %q/%q", got.Producer, got.Type, meta.Producer, meta.Type)
	}
	if !got.Time.Equal(meta.Time) {
		t.Errorf("Time = %v, want %v", got.Time, meta.Time)
	}
}

func TestMetaFromDelivery_CorrelationFallsBackToMessageID(t *testing.T) {
	got := MetaFromDelivery(amqp.Delivery{MessageId: "m-1"})
	if got.CorrelationID != "m-1" {
		t.Errorf("CorrelationID = %q, want %q", got.CorrelationID, "m-1")
	}
}

func TestNoopPublisher(t *testing.T) {
	text := "bom dia"
	msg := flows.NewOutgoingMessage("bot-1", "+5511999", "exec-1", 0, flows.OutgoingPayload{Text: &text})

	p := NewNoopPublisher(nil)
	defer p.Close()

	if err := p.Publish(context.Background(), flows.OutgoingMeta, common.Meta{}, msg); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}
