package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
database:
  postgres:
    host: localhost
    port: 5432
    user: hook
    password: hook
    dbname: hookrelay
    sslmode: disable
broker:
  type: Kafka
  kafka:
    brokers: ["localhost:9092"]
    retry:
      max_attempts: 5
      initial_interval: 500ms
stripe:
  webhook_secret: whsec_from_file
relay:
  secret: relay-secret
  consume: true
filtering:
  skip_rules:
    - name: test_mode
      expression: "!livemode"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)

	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "webhook_events", cfg.Broker.Kafka.Topic)
	assert.Equal(t, "webhook-service", cfg.Broker.Kafka.GroupID)
	assert.Equal(t, 5, cfg.Broker.Kafka.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Broker.Kafka.Retry.InitialInterval)

	assert.Equal(t, "whsec_from_file", cfg.Stripe.WebhookSecret)
	assert.True(t, cfg.Relay.Consume)
	assert.Equal(t, "entitlement_grants", cfg.Relay.EntitlementsTopic)
	assert.Equal(t, "postgres", cfg.Tracker.Backend)
	assert.Equal(t, "tracker:", cfg.Tracker.KeyPrefix)
	require.Len(t, cfg.Filtering.SkipRules, 1)
	assert.Equal(t, "!livemode", cfg.Filtering.SkipRules[0].Expression)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_from_env")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("TRACING_OTLP_ENDPOINT", "collector:4317")

	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "whsec_from_env", cfg.Stripe.WebhookSecret)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "collector:4317", cfg.Tracing.OTLP.Endpoint)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stripe.webhook_secret")
}
