//go:build integration

package broker

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"hookrelay/internal/config"
	"hookrelay/internal/logger"
)

func setupKafka(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("hookrelay-test"),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Terminate(ctx)
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	return brokers
}

func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()

	conn, err := kafka.Dial("tcp", brokers[0])
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	}
	require.NoError(t, ctrl.CreateTopics(configs...))
}

func TestKafka_PublishConsume(t *testing.T) {
	brokers := setupKafka(t)
	createTopics(t, brokers, "webhook_events", "webhook_events_dlq")

	cfg := config.KafkaConfig{
		Brokers:  brokers,
		GroupID:  "hookrelay-test",
		Topic:    "webhook_events",
		DLQTopic: "webhook_events_dlq",
		Retry:    fastRetry(),
	}
	log := logger.NopLogger()

	producer := NewKafkaProducer(cfg, log)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	require.NoError(t, producer.Check(ctx))

	require.NoError(t, producer.Publish(ctx, cfg.Topic, Message{
		ID:      "evt_1",
		Key:     []byte("sub_A"),
		Value:   []byte(`{"secret":"s","event":{}}`),
		Headers: map[string]string{"source": "test"},
	}))

	received := make(chan Message, 1)
	consumer := NewKafkaConsumer(cfg, log)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Consume(consumeCtx, cfg.Topic, func(_ context.Context, msg Message) error {
			received <- msg
			return nil
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, "evt_1", msg.ID)
		assert.Equal(t, []byte("sub_A"), msg.Key)
		assert.Equal(t, "test", msg.Headers["source"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for relayed message")
	}

	stop()
	<-done
	require.NoError(t, consumer.Close())
}

func TestKafka_PublishToUncreatedTopic(t *testing.T) {
	brokers := setupKafka(t)

	producer := NewKafkaProducer(config.KafkaConfig{Brokers: brokers}, logger.NopLogger())
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, "entitlement_grants", Message{
		ID:    "evt_grant",
		Key:   []byte("cus_1"),
		Value: []byte(`{"customer":"cus_1"}`),
	}))

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: brokers, Topic: "entitlement_grants", Partition: 0})
	defer reader.Close()
	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("cus_1"), msg.Key)
}
