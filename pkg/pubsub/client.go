// Package pubsub moves agentic contract payloads over RabbitMQ. Queue bodies
// carry nothing but the contract JSON; message metadata rides in AMQP
// properties. One Client serves both sides: a pooled publisher and
// supervised consumers with a DLX retry ladder.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn *amqp.Connection
	pool *channelPool
	cfg  Config
	log  *slog.Logger

	consumerWG     sync.WaitGroup
	consumerClosed chan string
	consumerSpecs  map[string]ConsumerSpec
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	log := ensureLogger(logger)

	if cfg.URL == "" {
		return nil, errors.New("rabbitmq URL is required")
	}

	host := ""
	if u, err := url.Parse(cfg.URL); err == nil {
		host = u.Host
	}
	log.Info("connecting to rabbitmq", slog.String("host", host))

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, dsec(cfg.ConnTimeoutSeconds, 30))
		defer cancel()
	}
	conn, err := DialWithRetry(dialCtx, DialOptions{
		URL:      cfg.URL,
		Attempts: cfg.DialAttempts,
		Delay:    dsec(cfg.ReconnectBackoffBaseSeconds, 1),
		Dialer:   cfg.Dialer,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	c := &Client{conn: conn, cfg: cfg, log: log}

	// Exchanges are declared once on a throwaway channel. Queues and bindings
	// are per-consumer so they can carry DLX/TTL args.
	tempCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := c.setupExchanges(tempCh); err != nil {
		_ = tempCh.Close()
		_ = conn.Close()
		return nil, err
	}
	_ = tempCh.Close()

	c.pool = newChannelPool(conn, cfg.PublishPoolSize)

	log.Info("rabbitmq client ready", slog.String("exchange", cfg.Exchange))
	return c, nil
}

func (c *Client) Config() Config { return c.cfg }

func (c *Client) setupExchanges(ch *amqp.Channel) error {
	declare := func(ex string) error {
		if ex == "" {
			return nil
		}
		return ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil)
	}
	if err := declare(c.cfg.Exchange); err != nil {
		return fmt.Errorf("declare exchange %q: %w", c.cfg.Exchange, err)
	}
	for _, ex := range c.cfg.ExtraExchanges {
		if err := declare(ex); err != nil {
			return fmt.Errorf("declare exchange %q: %w", ex, err)
		}
	}
	return nil
}

// reconnect tears down the current connection and builds a fresh one with
// the same topology. Callers own the backoff loop.
func (c *Client) reconnect(ctx context.Context) error {
	if c.pool != nil {
		c.pool.close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		_ = c.conn.Close()
	}

	conn, err := DialWithRetry(ctx, DialOptions{
		URL:    c.cfg.URL,
		Dialer: c.cfg.Dialer,
		Logger: c.log,
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	tempCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setupExchanges(tempCh); err != nil {
		_ = tempCh.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchanges: %w", err)
	}
	_ = tempCh.Close()

	c.conn = conn
	c.pool = newChannelPool(conn, c.cfg.PublishPoolSize)
	c.log.Info("rabbitmq reconnected")
	return nil
}

// Close waits briefly for consumers to wind down, then closes the pool and
// the connection.
func (c *Client) Close() {
	done := make(chan struct{})
	go func() {
		c.consumerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	if c.pool != nil {
		c.pool.close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
