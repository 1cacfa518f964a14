package broker

import (
	"fmt"

	"hookrelay/internal/config"
	"hookrelay/internal/constants"
	"hookrelay/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaProducer(cfg.Kafka, log), nil
	case constants.BrokerTypeNATS:
		return NewNATSProducer(cfg.NATS, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return NewKafkaConsumer(cfg.Kafka, log), nil
	case constants.BrokerTypeNATS:
		return NewNATSConsumer(cfg.NATS, log)
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

// RelayTopic is the topic or subject relayed webhook events are published to.
func RelayTopic(cfg config.BrokerConfig) string {
	switch cfg.Type {
	case constants.BrokerTypeKafka:
		return cfg.Kafka.Topic
	case constants.BrokerTypeNATS:
		return cfg.NATS.Subject
	default:
		return ""
	}
}
