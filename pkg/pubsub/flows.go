package pubsub

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/constants"
	"github.com/agentichq/agentic-events/pkg/schemas/common"
	flows "github.com/agentichq/agentic-events/pkg/schemas/flows/v1"
)

// Ready-made consumer specs for the two flow queues. Retry defaults follow
// the platform convention: short TTL ladder, park after five attempts.

func defaultRetry() *RetrySpec {
	return &RetrySpec{
		Enabled:     true,
		TTL:         15 * time.Second,
		MaxAttempts: 5,
	}
}

// IncomingConsumerSpec builds the engine-side consumer for gateway traffic.
// Bodies that do not decode, or that carry an unknown type, are poison.
func IncomingConsumerSpec(handle func(ctx context.Context, meta common.Meta, msg flows.IncomingMessage) error) ConsumerSpec {
	return ConsumerSpec{
		Name:          "flows-incoming",
		Exchange:      constants.ExchangeFlows,
		Queue:         constants.QueueIncoming,
		BindingKey:    constants.KeyFlowsIncoming,
		Retry:         defaultRetry(),
		PoisonToFinal: true,
		Consume: func(ctx context.Context, d amqp.Delivery) error {
			msg, err := flows.DecodeIncomingMessage(d.Body)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPoison, err)
			}
			return handle(ctx, MetaFromDelivery(d), msg)
		},
	}
}

// OutgoingConsumerSpec builds the delivery-side consumer for engine output.
// Contract violations are poison; handler errors ride the retry ladder.
func OutgoingConsumerSpec(handle func(ctx context.Context, meta common.Meta, msg flows.OutgoingMessage) error) ConsumerSpec {
	return ConsumerSpec{
		Name:          "flows-outgoing",
		Exchange:      constants.ExchangeFlows,
		Queue:         constants.QueueOutgoing,
		BindingKey:    constants.KeyFlowsOutgoing,
		Retry:         defaultRetry(),
		PoisonToFinal: true,
		Consume: func(ctx context.Context, d amqp.Delivery) error {
			msg, err := flows.UnmarshalOutgoingMessage(d.Body)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrPoison, err)
			}
			if err := msg.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrPoison, err)
			}
			return handle(ctx, MetaFromDelivery(d), msg)
		},
	}
}
