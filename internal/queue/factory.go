package queue

import (
	"fmt"
	"strings"

	"github.com/soltixdb/pvratio/internal/config"
)

// NewPublisher creates a Publisher based on configuration.
// A disabled queue gets an in-memory publisher; an unset type means NATS.
func NewPublisher(cfg config.QueueConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NewMemoryPublisher(), nil
	}

	queueType := Type(strings.ToLower(cfg.Type))
	if queueType == "" {
		queueType = TypeNATS
	}

	switch queueType {
	case TypeNATS:
		return NewNATSPublisher(NATSConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
		})

	case TypeRedis:
		return NewRedisPublisher(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStreamName(),
		})

	case TypeKafka:
		brokers := cfg.KafkaBrokers
		if len(brokers) == 0 && cfg.URL != "" {
			brokers = strings.Split(cfg.URL, ",")
		}
		return NewKafkaPublisher(KafkaConfig{Brokers: brokers})

	case TypeMemory:
		return NewMemoryPublisher(), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: nats, redis, kafka, memory)", queueType)
	}
}
