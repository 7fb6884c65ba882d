package pubsub

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agentichq/agentic-events/pkg/constants"
)

// Config defines client settings and topology defaults for the agentic
// broker. Zero fields fall back to platform defaults when the client is
// built, so a Config with only URL set is usable.
type Config struct {
	URL string `env:"AGENTIC_AMQP_URL"`

	// Exchange is the primary topic exchange for flow traffic. ExtraExchanges
	// are declared alongside it at connect time.
	Exchange       string   `env:"AGENTIC_AMQP_EXCHANGE"`
	ExtraExchanges []string `env:"AGENTIC_AMQP_EXTRA_EXCHANGES" envSeparator:","`

	// Producer is stamped on published messages whose Meta carries none.
	Producer string `env:"AGENTIC_AMQP_PRODUCER"`

	DialAttempts       int `env:"AGENTIC_AMQP_DIAL_ATTEMPTS"`
	ConnTimeoutSeconds int `env:"AGENTIC_AMQP_CONN_TIMEOUT_SECONDS"`
	PublishPoolSize    int `env:"AGENTIC_AMQP_PUBLISH_POOL_SIZE"`
	PoolRetryDelayMs   int `env:"AGENTIC_AMQP_POOL_RETRY_DELAY_MS"`
	ConsumerPrefetch   int `env:"AGENTIC_AMQP_CONSUMER_PREFETCH"`

	ReconnectBackoffBaseSeconds int `env:"AGENTIC_AMQP_RECONNECT_BASE_SECONDS"`
	ReconnectBackoffCapSeconds  int `env:"AGENTIC_AMQP_RECONNECT_CAP_SECONDS"`
	ReconnectJitterPercent      int `env:"AGENTIC_AMQP_RECONNECT_JITTER_PERCENT"`

	// Dialer overrides the AMQP dial, mainly for tests.
	Dialer func(ctx context.Context, url string) (*amqp.Connection, error)
}

// ConfigFromEnv loads Config from AGENTIC_AMQP_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse amqp env: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = constants.ExchangeFlows
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 1
	}
	if c.ConnTimeoutSeconds <= 0 {
		c.ConnTimeoutSeconds = 30
	}
	if c.PublishPoolSize <= 0 {
		c.PublishPoolSize = 16
	}
	if c.PoolRetryDelayMs <= 0 {
		c.PoolRetryDelayMs = 50
	}
	if c.ConsumerPrefetch <= 0 {
		c.ConsumerPrefetch = 10
	}
	if c.ReconnectBackoffBaseSeconds <= 0 {
		c.ReconnectBackoffBaseSeconds = 1
	}
	if c.ReconnectBackoffCapSeconds <= 0 {
		c.ReconnectBackoffCapSeconds = 30
	}
	if c.ReconnectJitterPercent <= 0 {
		c.ReconnectJitterPercent = 25
	}
	return c
}
