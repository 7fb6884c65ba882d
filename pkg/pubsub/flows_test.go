package pubsub

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/constants"
	"github.com/agentichq/agentic-events/pkg/schemas/common"
	flows "github.com/agentichq/agentic-events/pkg/schemas/flows/v1"
)

func TestIncomingConsumerSpec_Topology(t *testing.T) {
	spec := IncomingConsumerSpec(func(context.Context, common.Meta, flows.IncomingMessage) error { return nil })

	if spec.Queue != constants.QueueIncoming {
		t.Errorf("Queue = %q, want %q", spec.Queue, constants.QueueIncoming)
	}
	if spec.Exchange != constants.ExchangeFlows || spec.BindingKey != constants.KeyFlowsIncoming {
		t.Errorf("binding = %q/%q", spec.Exchange, spec.BindingKey)
	}
	if spec.Retry == nil || !spec.Retry.Enabled {
		t.Error("retry ladder not enabled")
	}
}

func TestIncomingConsumerSpec_DeliversTypedMessage(t *testing.T) {
	var gotMeta common.Meta
	var gotMsg flows.IncomingMessage
	spec := IncomingConsumerSpec(func(_ context.Context, meta common.Meta, msg flows.IncomingMessage) error {
		gotMeta, gotMsg = meta, msg
		return nil
	})

	body := []byte(`{"type":"NEW_MESSAGE","bot_id":"bot-1","session_id":"sess-1","identifier":"+5511999","platform":"whatsapp","from_me":false,"sender":"+5511999","message":{"text":"oi","mediaUrl":null,"timestamp":1710241200}}`)
	d := amqp.Delivery{Body: body, MessageId: "m-1", AppId: constants.ProducerGateway}

	if err := spec.Consume(context.Background(), d); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	nm, ok := gotMsg.(flows.NewMessage)
	if !ok {
		t.Fatalf("message decoded as %T, want flows.NewMessage", gotMsg)
	}
	if nm.BotID != "bot-1" || nm.Message.Text == nil || *nm.Message.Text != "oi" {
		t.Errorf("decoded message = %+v", nm)
	}
	if gotMeta.ID != "m-1" || gotMeta.Producer != constants.ProducerGateway {
		t.Errorf("meta = %+v", gotMeta)
	}
}

func TestIncomingConsumerSpec_UnknownTypeIsPoison(t *testing.T) {
	spec := IncomingConsumerSpec(func(context.Context, common.Meta, flows.IncomingMessage) error {
		t.Error("handler called for an unknown message type")
		return nil
	})

	err := spec.Consume(context.Background(), amqp.Delivery{Body: []byte(`{"type":"RETRY_STEP"}`)})
	if !errors.Is(err, ErrPoison) {
		t.Errorf("error = %v, want ErrPoison", err)
	}
}

func TestOutgoingConsumerSpec_DeliversValidMessage(t *testing.T) {
	var got flows.OutgoingMessage
	spec := OutgoingConsumerSpec(func(_ context.Context, _ common.Meta, m flows.OutgoingMessage) error {
		got = m
		return nil
	})

	body := []byte(`{"bot_id":"bot-1","target":"+5511999","execution_id":"exec-1","step_order":2,"payload":{"text":"bom dia"}}`)
	if err := spec.Consume(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if got.StepOrder != 2 || got.Target != "+5511999" {
		t.Errorf("message = %+v", got)
	}
}

func TestOutgoingConsumerSpec_InvalidContractIsPoison(t *testing.T) {
	spec := OutgoingConsumerSpec(func(context.Context, common.Meta, flows.OutgoingMessage) error {
		t.Error("handler called for an invalid contract")
		return nil
	})

	// missing target, empty payload
	body := []byte(`{"bot_id":"bot-1","execution_id":"exec-1","step_order":0,"payload":{}}`)
	err := spec.Consume(context.Background(), amqp.Delivery{Body: body})
	if !errors.Is(err, ErrPoison) {
		t.Errorf("error = %v, want ErrPoison", err)
	}
}

func TestOutgoingConsumerSpec_BadJSONIsPoison(t *testing.T) {
	spec := OutgoingConsumerSpec(func(context.Context, common.Meta, flows.OutgoingMessage) error { return nil })

	err := spec.Consume(context.Background(), amqp.Delivery{Body: []byte("{{")})
	if !errors.Is(err, ErrPoison) {
		t.Errorf("error = %v, want ErrPoison", err)
	}
}
