package broker

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
	"hookrelay/pkg/errors"
	"hookrelay/pkg/retry"
)

type capturingProducer struct {
	mu   sync.Mutex
	msgs map[string][]Message
}

func (p *capturingProducer) Publish(_ context.Context, topic string, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][]Message)
	}
	p.msgs[topic] = append(p.msgs[topic], msg)
	return nil
}

func (p *capturingProducer) Name() string                  { return "capture" }
func (p *capturingProducer) Check(_ context.Context) error { return nil }
func (p *capturingProducer) Close() error                  { return nil }

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	headers := map[string]string{"event_id": "evt_1", "traceparent": "00-abc-def-01"}

	msg := fromKafkaMessage(kafka.Message{
		Key:     []byte("sub_A"),
		Value:   []byte(`{}`),
		Headers: toKafkaHeaders(headers),
	})

	assert.Equal(t, "evt_1", msg.ID)
	assert.Equal(t, []byte("sub_A"), msg.Key)
	assert.Equal(t, headers, msg.Headers)
}

func TestCopyHeaders_DoesNotAlias(t *testing.T) {
	in := map[string]string{"a": "1"}
	out := copyHeaders(in)
	out["b"] = "2"

	assert.Len(t, in, 1)
	assert.Equal(t, "1", out["a"])
	assert.NotNil(t, copyHeaders(nil))
}

func TestKafkaConsumer_RetriesThenSucceeds(t *testing.T) {
	c := NewKafkaConsumer(config.KafkaConfig{Retry: fastRetry()}, logger.NopLogger())

	attempts := 0
	err := c.processMessageWithRetry(context.Background(), Message{ID: "evt_1"}, func(context.Context, Message) error {
		attempts++
		if attempts < 3 {
			return retry.NewRetryableError(stderrors.New("transient"))
		}
		return nil
	}, "webhook_events")

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestKafkaConsumer_FatalStopsImmediately(t *testing.T) {
	c := NewKafkaConsumer(config.KafkaConfig{Retry: fastRetry()}, logger.NopLogger())

	attempts := 0
	err := c.processMessageWithRetry(context.Background(), Message{}, func(context.Context, Message) error {
		attempts++
		return retry.NewFatalError(stderrors.New("poison"))
	}, "webhook_events")

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestKafkaConsumer_RetryableWrapperWinsOverFatalCause(t *testing.T) {
	c := NewKafkaConsumer(config.KafkaConfig{Retry: fastRetry()}, logger.NopLogger())

	attempts := 0
	err := c.processMessageWithRetry(context.Background(), Message{}, func(context.Context, Message) error {
		attempts++
		return retry.NewRetryableError(errors.ErrHandlerFailed.AsFatal())
	}, "webhook_events")

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestKafkaConsumer_RecoversPanics(t *testing.T) {
	c := NewKafkaConsumer(config.KafkaConfig{Retry: fastRetry()}, logger.NopLogger())

	err := c.processMessageWithRetry(context.Background(), Message{}, func(context.Context, Message) error {
		panic("boom")
	}, "webhook_events")

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrHandlerFailed)
}

func TestKafkaConsumer_SendToDLQ(t *testing.T) {
	dlq := &capturingProducer{}
	c := NewKafkaConsumer(config.KafkaConfig{DLQTopic: "webhook_events_dlq"}, logger.NopLogger())
	c.dlqProducer = dlq

	msg := Message{ID: "evt_1", Key: []byte("sub_A"), Value: []byte(`{}`), Headers: map[string]string{"event_id": "evt_1"}}
	require.NoError(t, c.sendToDLQ(context.Background(), msg, stderrors.New("gave up"), "webhook_events"))

	sent := dlq.msgs["webhook_events_dlq"]
	require.Len(t, sent, 1)
	assert.Equal(t, "gave up", sent[0].Headers[dlqReasonHeader])
	assert.Equal(t, "webhook_events", sent[0].Headers[dlqSourceHeader])
	assert.NotEmpty(t, sent[0].Headers[dlqTimestampHeader])
	assert.Equal(t, []byte("sub_A"), sent[0].Key)
	assert.NotContains(t, msg.Headers, dlqReasonHeader)
}

func TestRelayTopic(t *testing.T) {
	assert.Equal(t, "k", RelayTopic(config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Topic: "k"}}))
	assert.Equal(t, "n", RelayTopic(config.BrokerConfig{Type: "nats", NATS: config.NATSConfig{Subject: "n"}}))
	assert.Empty(t, RelayTopic(config.BrokerConfig{}))
}

func TestNewProducer_UnknownType(t *testing.T) {
	_, err := NewProducer(config.BrokerConfig{Type: "carrier-pigeon"}, logger.NopLogger())
	assert.Error(t, err)

	_, err = NewConsumer(config.BrokerConfig{Type: "carrier-pigeon"}, logger.NopLogger())
	assert.Error(t, err)
}

func TestNewKafkaProducer_WriterSettings(t *testing.T) {
	p := NewKafkaProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, logger.NopLogger())
	defer p.Close()

	assert.True(t, p.writer.AllowAutoTopicCreation, "grant topic has no consumer to create it")
	assert.Equal(t, kafka.RequireAll, p.writer.RequiredAcks)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
}
