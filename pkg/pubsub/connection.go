package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DialOptions control a retried dial. Attempts <= 0 means a single try.
type DialOptions struct {
	URL      string
	Attempts int
	Delay    time.Duration
	Dialer   func(ctx context.Context, url string) (*amqp.Connection, error)
	Logger   *slog.Logger
}

const maxDialBackoff = 60 * time.Second

// DialWithRetry connects to RabbitMQ with capped exponential backoff.
// It respects context cancellation for graceful shutdown.
func DialWithRetry(ctx context.Context, opts DialOptions) (*amqp.Connection, error) {
	log := ensureLogger(opts.Logger)
	dial := opts.Dialer
	if dial == nil {
		dial = func(_ context.Context, u string) (*amqp.Connection, error) { return amqp.Dial(u) }
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := dial(ctx, opts.URL)
		if err == nil {
			if i > 1 {
				log.Info("rabbit connected", slog.Int("attempt", i))
			}
			return conn, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxDialBackoff {
			sleep = maxDialBackoff
		}

		log.Warn("rabbit dial failed",
			slog.Int("attempt", i),
			slog.Duration("retry_in", sleep),
			slog.Any("error", err),
		)

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("connect to RabbitMQ after %d attempts: %w", attempts, lastErr)
}
