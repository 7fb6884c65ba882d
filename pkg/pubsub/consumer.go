package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/schemas/common"
)

// RetrySpec configures the DLX-based retry pipeline: rejected deliveries
// park in a dead queue for TTL and route back to the main queue; once
// MaxAttempts is exhausted they land in the final queue.
type RetrySpec struct {
	Enabled     bool
	TTL         time.Duration
	MaxAttempts int

	DeadExchange  string
	DeadQueue     string
	FinalExchange string
	FinalQueue    string
}

// ConsumerSpec defines a single supervised consumer.
type ConsumerSpec struct {
	Name          string
	Exchange      string
	ExchangeKind  string // default topic
	Queue         string
	BindingKey    string
	Prefetch      int           // 0 = Config.ConsumerPrefetch
	Workers       int           // concurrent handlers, 0 = 1
	HandleTimeout time.Duration // per-delivery bound, 0 = none
	Retry         *RetrySpec

	// Poison messages are acked either way; with PoisonToFinal a copy lands
	// in the final queue first.
	PoisonToFinal bool

	Consume func(ctx context.Context, d amqp.Delivery) error
}

// ErrPoison marks non-retriable bad content. Handlers return it (wrapped or
// bare) when redelivery cannot help: undecodable bodies, unknown types,
// contract violations.
var ErrPoison = errors.New("poison message")

// JSONHandler adapts a typed handler, classifying bodies that do not decode
// as poison.
func JSONHandler[T any](h func(context.Context, T) error) func(context.Context, amqp.Delivery) error {
	return func(ctx context.Context, d amqp.Delivery) error {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return fmt.Errorf("%w: %v", ErrPoison, err)
		}
		return h(ctx, v)
	}
}

// MetaFromDelivery rebuilds message metadata from AMQP properties. Bodies on
// agentic queues carry only the contract payload, so this is the read side
// of the mapping Publish writes.
func MetaFromDelivery(d amqp.Delivery) common.Meta {
	return common.Meta{
		ID:            d.MessageId,
		CorrelationID: firstNonEmpty(d.CorrelationId, d.MessageId),
		Producer:      d.AppId,
		Time:          d.Timestamp,
		Type:          d.Type,
	}
}

// RunWithConsumers starts every spec and supervises the connection until ctx
// ends. A consumer whose channel dies is restarted in place; a dropped
// connection triggers a full reconnect with jittered backoff, then all
// consumers come back on the new connection.
func (c *Client) RunWithConsumers(ctx context.Context, specs ...ConsumerSpec) error {
	c.consumerClosed = make(chan string, len(specs)*2)
	c.consumerSpecs = make(map[string]ConsumerSpec, len(specs))

	for _, s := range specs {
		c.consumerSpecs[s.Name] = s
		if err := c.startConsumer(ctx, s); err != nil {
			return fmt.Errorf("start consumer %s: %w", s.Name, err)
		}
	}

	connClosed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	base := dsec(c.cfg.ReconnectBackoffBaseSeconds, 1)
	capd := dsec(c.cfg.ReconnectBackoffCapSeconds, 30)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case name := <-c.consumerClosed:
			if s, ok := c.consumerSpecs[name]; ok {
				if err := c.startConsumer(ctx, s); err != nil {
					c.log.Error("restart consumer failed",
						slog.String("name", name), slog.Any("error", err))
				}
			}

		case amqpErr, ok := <-connClosed:
			if !ok {
				amqpErr = &amqp.Error{Reason: "connection closed"}
			}
			c.log.Error("amqp connection lost, reconnecting", slog.Any("error", amqpErr))

			backoff := base
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err := c.reconnect(ctx); err != nil {
					wait := jitteredDelay(backoff, capd, c.cfg.ReconnectJitterPercent)
					c.log.Error("reconnect failed",
						slog.Any("error", err), slog.Duration("retry_in", wait))
					time.Sleep(wait)
					if backoff*2 < capd {
						backoff *= 2
					}
					continue
				}
				for _, s := range c.consumerSpecs {
					if err := c.startConsumer(ctx, s); err != nil {
						c.log.Error("restart consumer after reconnect failed",
							slog.String("name", s.Name), slog.Any("error", err))
					}
				}
				connClosed = c.conn.NotifyClose(make(chan *amqp.Error, 1))
				break
			}
		}
	}
}

// startConsumer declares the per-consumer topology and runs the delivery
// loop, fanning out to spec.Workers handler goroutines.
func (c *Client) startConsumer(ctx context.Context, spec ConsumerSpec) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}

	pf := spec.Prefetch
	if pf <= 0 {
		pf = c.cfg.ConsumerPrefetch
	}
	if pf <= 0 {
		pf = 1
	}
	if err := ch.Qos(pf, 0, false); err != nil {
		_ = ch.Close()
		return err
	}

	if err := c.declareConsumerTopology(ch, spec); err != nil {
		_ = ch.Close()
		return err
	}

	msgs, err := ch.Consume(spec.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return err
	}

	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))

	workers := spec.Workers
	if workers <= 0 {
		workers = 1
	}
	jobs := make(chan amqp.Delivery)

	var handlers sync.WaitGroup
	for i := 0; i < workers; i++ {
		handlers.Add(1)
		go func() {
			defer handlers.Done()
			for d := range jobs {
				c.handleDelivery(ctx, ch, spec, d)
			}
		}()
	}

	c.consumerWG.Add(1)
	go func() {
		defer c.consumerWG.Done()
		defer func() {
			close(jobs)
			handlers.Wait()
			_ = safeClose(ch)
		}()
		for {
			select {
			case <-ctx.Done():
				return

			case <-closeCh:
				drainRequeue(msgs)
				select {
				case c.consumerClosed <- spec.Name:
				default:
				}
				return

			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case jobs <- d:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	c.log.Info("consumer started",
		slog.String("name", spec.Name),
		slog.String("queue", spec.Queue),
		slog.Int("prefetch", pf),
		slog.Int("workers", workers),
	)
	return nil
}

// handleDelivery applies the retry and poison policy around a single
// delivery: exhausted retries park in the final queue, poison is acked
// (optionally parked), transient failures go to the DLX or requeue.
func (c *Client) handleDelivery(ctx context.Context, ch *amqp.Channel, spec ConsumerSpec, d amqp.Delivery) {
	if spec.Retry != nil && spec.Retry.Enabled && spec.Retry.MaxAttempts > 0 &&
		DeathCount(d, spec.Queue) >= spec.Retry.MaxAttempts {
		_ = publishFinal(ch, finalExchange(spec), d)
		_ = d.Ack(false)
		return
	}

	hctx := ctx
	if spec.HandleTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, spec.HandleTimeout)
		defer cancel()
	}

	err := spec.Consume(hctx, d)
	switch {
	case err == nil:
		_ = d.Ack(false)

	case errors.Is(err, ErrPoison):
		c.log.Warn("poison message",
			slog.String("queue", spec.Queue),
			slog.String("message_id", d.MessageId),
			slog.Any("error", err),
		)
		if spec.PoisonToFinal {
			_ = publishFinal(ch, finalExchange(spec), d)
		}
		_ = d.Ack(false)

	default:
		c.log.Error("consume failed",
			slog.String("queue", spec.Queue),
			slog.String("message_id", d.MessageId),
			slog.Any("error", err),
		)
		if spec.Retry != nil && spec.Retry.Enabled {
			_ = d.Nack(false, false)
		} else {
			_ = d.Nack(false, true)
		}
	}
}

// drainRequeue nacks whatever the broker already pushed so another consumer
// picks it up sooner.
func drainRequeue(msgs <-chan amqp.Delivery) {
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				return
			}
			_ = d.Nack(false, true)
		default:
			return
		}
	}
}

// declareConsumerTopology declares the main queue and bind, the DLX/TTL
// retry stage, and the final parking queue.
func (c *Client) declareConsumerTopology(ch *amqp.Channel, s ConsumerSpec) error {
	kind := s.ExchangeKind
	if kind == "" {
		kind = "topic"
	}
	if err := ch.ExchangeDeclare(s.Exchange, kind, true, false, false, false, nil); err != nil {
		return err
	}

	retry := s.Retry != nil && s.Retry.Enabled

	mainArgs := amqp.Table{}
	if retry {
		mainArgs["x-dead-letter-exchange"] = deadExchange(s)
	}
	if _, err := ch.QueueDeclare(s.Queue, true, false, false, false, mainArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(s.Queue, s.BindingKey, s.Exchange, false, nil); err != nil {
		return err
	}

	if retry {
		// Parked deliveries expire after TTL and route back to the main
		// queue through the primary exchange.
		dArgs := amqp.Table{
			"x-message-ttl":             int32(s.Retry.TTL / time.Millisecond),
			"x-dead-letter-exchange":    s.Exchange,
			"x-dead-letter-routing-key": s.BindingKey,
		}
		if err := ch.ExchangeDeclare(deadExchange(s), "fanout", true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(deadQueue(s), true, false, false, false, dArgs); err != nil {
			return err
		}
		if err := ch.QueueBind(deadQueue(s), "", deadExchange(s), false, nil); err != nil {
			return err
		}
	}

	if retry || s.PoisonToFinal {
		if err := ch.ExchangeDeclare(finalExchange(s), "fanout", true, false, false, false, nil); err != nil {
			return err
		}
		if _, err := ch.QueueDeclare(finalQueue(s), true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(finalQueue(s), "", finalExchange(s), false, nil); err != nil {
			return err
		}
	}

	return nil
}

func deadExchange(s ConsumerSpec) string {
	if s.Retry != nil && s.Retry.DeadExchange != "" {
		return s.Retry.DeadExchange
	}
	return s.Queue + ".dead"
}

func deadQueue(s ConsumerSpec) string {
	if s.Retry != nil && s.Retry.DeadQueue != "" {
		return s.Retry.DeadQueue
	}
	return s.Queue + ".dead"
}

func finalExchange(s ConsumerSpec) string {
	if s.Retry != nil && s.Retry.FinalExchange != "" {
		return s.Retry.FinalExchange
	}
	return s.Queue + ".final"
}

func finalQueue(s ConsumerSpec) string {
	if s.Retry != nil && s.Retry.FinalQueue != "" {
		return s.Retry.FinalQueue
	}
	return s.Queue + ".final"
}
