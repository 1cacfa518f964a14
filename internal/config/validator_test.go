package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  15 * time.Second,
			WriteTimeoutSeconds: 30 * time.Second,
			MaxBodyBytes:        1 << 20,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "hook", DBName: "hookrelay", SSLMode: "disable"},
		},
		Stripe:  StripeConfig{WebhookSecret: "whsec_123"},
		Tracker: TrackerConfig{Backend: "postgres"},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "missing webhook secret",
			mutate:  func(c *Config) { c.Stripe.WebhookSecret = "" },
			wantErr: "stripe.webhook_secret",
		},
		{
			name:    "negative customer cache",
			mutate:  func(c *Config) { c.Stripe.CustomerCacheSeconds = -1 },
			wantErr: "stripe.customer_cache_seconds",
		},
		{
			name:    "unknown broker",
			mutate:  func(c *Config) { c.Broker.Type = "rabbitmq"; c.Relay.Secret = "s" },
			wantErr: "broker.type",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.Broker.Type = "kafka"
				c.Broker.Kafka.GroupID = "g"
				c.Relay.Secret = "s"
			},
			wantErr: "broker.kafka.brokers",
		},
		{
			name: "kafka without relay secret",
			mutate: func(c *Config) {
				c.Broker.Type = "kafka"
				c.Broker.Kafka = KafkaConfig{Brokers: []string{"localhost:9092"}, GroupID: "g"}
			},
			wantErr: "relay.secret",
		},
		{
			name: "nats url scheme",
			mutate: func(c *Config) {
				c.Broker.Type = "nats"
				c.Broker.NATS = NATSConfig{URL: "localhost:4222", Stream: "WEBHOOKS"}
				c.Relay.Secret = "s"
			},
			wantErr: "broker.nats.url",
		},
		{
			name: "valid nats",
			mutate: func(c *Config) {
				c.Broker.Type = "nats"
				c.Broker.NATS = NATSConfig{URL: "nats://localhost:4222", Stream: "WEBHOOKS"}
				c.Relay.Secret = "s"
			},
		},
		{
			name: "redis backend without redis",
			mutate: func(c *Config) {
				c.Tracker.Backend = "redis"
			},
			wantErr: "database.redis.host",
		},
		{
			name: "memory backend needs nothing",
			mutate: func(c *Config) {
				c.Database = DatabaseConfig{}
				c.Tracker.Backend = "memory"
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Tracker.Backend = "etcd" },
			wantErr: "tracker.backend",
		},
		{
			name:    "bad sslmode",
			mutate:  func(c *Config) { c.Database.Postgres.SSLMode = "sometimes" },
			wantErr: "database.postgres.sslmode",
		},
		{
			name:    "bad mongo uri",
			mutate:  func(c *Config) { c.Database.MongoDB.URI = "localhost:27017" },
			wantErr: "database.mongodb.uri",
		},
		{
			name: "empty skip rule",
			mutate: func(c *Config) {
				c.Filtering.SkipRules = []SkipRule{{Name: "blank", Expression: "  "}}
			},
			wantErr: "filtering.skip_rules[0].expression",
		},
		{
			name: "skip rule does not compile",
			mutate: func(c *Config) {
				c.Filtering.SkipRules = []SkipRule{
					{Name: "test mode", Expression: "!livemode"},
					{Name: "typo", Expression: "object.amount >"},
				}
			},
			wantErr: "filtering.skip_rules[1].expression",
		},
		{
			name: "skip rule not boolean",
			mutate: func(c *Config) {
				c.Filtering.SkipRules = []SkipRule{{Name: "string", Expression: "event_type"}}
			},
			wantErr: "must return bool",
		},
		{
			name: "valid skip rule",
			mutate: func(c *Config) {
				c.Filtering.SkipRules = []SkipRule{{Name: "test mode", Expression: "!livemode"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStripeConfig_Tolerance(t *testing.T) {
	assert.Equal(t, 300*time.Second, StripeConfig{}.Tolerance())
	assert.Equal(t, 60*time.Second, StripeConfig{ToleranceSeconds: 60}.Tolerance())
}
