package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	NATSPublishTimeout = 5 * time.Second
	NATSFetchWait      = 5 * time.Second
)

const (
	ServiceName = "webhook-service"
)

const (
	SignatureHeader     = "Stripe-Signature"
	DefaultRelayTopic   = "webhook_events"
	DefaultDLQTopic     = "webhook_events_dlq"
	DefaultGrantTopic   = "entitlement_grants"
	DefaultMongoDBName  = "hookrelay"
	TrackerTable        = "webhook_trackers"
	DefaultTrackerKeyNS = "tracker:"
)

const (
	EntitlementsCollection = "entitlements"
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 2 * time.Second
)

const (
	BrokerTypeKafka = "kafka"
	BrokerTypeNATS  = "nats"
)

const (
	TrackerBackendPostgres = "postgres"
	TrackerBackendRedis    = "redis"
	TrackerBackendMemory   = "memory"
)
