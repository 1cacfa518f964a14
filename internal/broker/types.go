package broker

import (
	"context"
)

// Message is the transport-neutral unit the relay publishes. ID is the
// webhook event id and is used for broker-side deduplication where the
// broker supports it. Key selects the partition.
type Message struct {
	ID      string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes a message and returns once the broker has acknowledged it.
type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Name() string
	Check(ctx context.Context) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one consumed message. A nil return acknowledges
// it; an error asks for redelivery.
type HandlerFunc func(ctx context.Context, msg Message) error
