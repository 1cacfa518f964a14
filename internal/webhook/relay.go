package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	"hookrelay/internal/broker"
	"hookrelay/pkg/metrics"
	"hookrelay/pkg/models"
)

// Relay hands authenticated events to the broker instead of processing
// them inline. A nil *Relay is valid and never enabled.
type Relay struct {
	producer broker.Producer
	topic    string
	secret   string
}

func NewRelay(producer broker.Producer, topic, secret string) *Relay {
	return &Relay{producer: producer, topic: topic, secret: secret}
}

// IsConnected reports whether a broker client was constructed.
func (r *Relay) IsConnected() bool {
	return r != nil && r.producer != nil
}

// DefaultTopic reports whether a target topic is configured.
func (r *Relay) DefaultTopic() bool {
	return r != nil && r.topic != ""
}

func (r *Relay) Enabled() bool {
	return r.IsConnected() && r.DefaultTopic()
}

// Publish wraps evt in a RelayEnvelope and blocks until the broker has
// acknowledged it. Events for one resource share a partition key.
func (r *Relay) Publish(ctx context.Context, evt *models.Event) error {
	if !r.Enabled() {
		return fmt.Errorf("relay is not configured")
	}

	body, err := json.Marshal(models.RelayEnvelope{Secret: r.secret, Event: *evt})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}

	err = r.producer.Publish(ctx, r.topic, broker.Message{
		ID:    evt.ID,
		Key:   []byte(evt.ResourceID()),
		Value: body,
	})
	if err != nil {
		metrics.IncRelayPublished(r.producer.Name(), "error")
		return err
	}

	metrics.IncRelayPublished(r.producer.Name(), "ok")
	return nil
}
