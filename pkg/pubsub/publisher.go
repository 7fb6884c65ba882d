package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/schemas/common"
)

// Publisher is the producing half of the broker. Services hold the interface
// so tests and degraded deployments can swap in NoopPublisher.
type Publisher interface {
	Publish(ctx context.Context, binding common.EventMeta, meta common.Meta, payload any) error
	Close()
}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = (*NoopPublisher)(nil)
)

// Publish sends payload as a bare JSON body to the binding's exchange and
// routing key. Meta never rides inside the body: it maps onto AMQP message
// properties so queue payloads stay contract-exact.
func (c *Client) Publish(ctx context.Context, binding common.EventMeta, meta common.Meta, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ch, err := c.pool.borrow(ctx, c.poolRetryDelay())
	if err != nil {
		return fmt.Errorf("borrow channel: %w", err)
	}
	defer c.pool.put(ch)

	return ch.PublishWithContext(ctx, binding.Exchange, binding.RoutingKey, false, false,
		publishingFor(binding, meta, c.cfg.Producer, body))
}

// PublishConfirm is Publish with publisher confirms: it blocks until the
// broker acks the message or ctx ends. Use it where losing a message is
// worse than waiting, e.g. handing engine output to the delivery queue.
func (c *Client) PublishConfirm(ctx context.Context, binding common.EventMeta, meta common.Meta, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ch, err := c.pool.borrow(ctx, c.poolRetryDelay())
	if err != nil {
		return fmt.Errorf("borrow channel: %w", err)
	}
	// Confirm mode sticks to a channel for its lifetime, so this one is
	// retired instead of going back into the pool.
	defer func() {
		_ = safeClose(ch)
		c.pool.put(ch)
	}()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("confirm mode: %w", err)
	}
	confirms := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.PublishWithContext(ctx, binding.Exchange, binding.RoutingKey, false, false,
		publishingFor(binding, meta, c.cfg.Producer, body)); err != nil {
		return err
	}

	select {
	case conf, ok := <-confirms:
		if !ok {
			return errors.New("confirm channel closed before ack")
		}
		if !conf.Ack {
			return fmt.Errorf("broker nacked delivery %d", conf.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) poolRetryDelay() time.Duration {
	return time.Duration(c.cfg.PoolRetryDelayMs) * time.Millisecond
}

// publishingFor maps Meta onto AMQP properties, filling the gaps a caller
// left: ID, correlation, timestamp, event type from the binding, producer
// from client config.
func publishingFor(binding common.EventMeta, meta common.Meta, producer string, body []byte) amqp.Publishing {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CorrelationID == "" {
		meta.CorrelationID = meta.ID
	}
	if meta.Time.IsZero() {
		meta.Time = time.Now().UTC()
	}
	if meta.Type == "" {
		meta.Type = binding.EventType
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     meta.ID,
		CorrelationId: meta.CorrelationID,
		Type:          meta.Type,
		Timestamp:     meta.Time,
		AppId:         firstNonEmpty(meta.Producer, producer),
	}
}

// NoopPublisher drops every message. It stands in for Client when the broker
// is unavailable or intentionally disabled.
type NoopPublisher struct {
	log *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	return &NoopPublisher{log: ensureLogger(logger)}
}

func (p *NoopPublisher) Publish(_ context.Context, binding common.EventMeta, meta common.Meta, _ any) error {
	p.log.Warn("noop publisher: skipped publish",
		slog.String("key", binding.RoutingKey),
		slog.String("type", firstNonEmpty(meta.Type, binding.EventType)),
	)
	return nil
}

func (p *NoopPublisher) Close() {}
