package kafka

import (
	"strings"
	"time"

	"github.com/Shopify/sarama"
)

// Config describes the producer side of the cluster connection.
type Config struct {
	Brokers             []string
	ClientID            string
	ProducerRetries     int
	ProducerCompression string // none/snappy/lz4/zstd
	KafkaVersion        sarama.KafkaVersion

	// topic bootstrap
	AutoCreateTopics   bool
	PartitionsPerTopic int32
	ReplicationFactor  int16
}

// DefaultConfig suits a single local broker.
func DefaultConfig(brokers ...string) Config {
	if len(brokers) == 0 {
		brokers = []string{"127.0.0.1:9092"}
	}
	return Config{
		Brokers:             brokers,
		ClientID:            "proom",
		ProducerRetries:     5,
		ProducerCompression: "snappy",
		KafkaVersion:        sarama.V2_1_0_0,
		AutoCreateTopics:    true,
		PartitionsPerTopic:  8,
		ReplicationFactor:   1,
	}
}

// BuildSaramaConfig turns c into a sarama config for a sync producer.
// Messages are hash-partitioned on their key.
func BuildSaramaConfig(c Config) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = c.KafkaVersion
	if c.ClientID != "" {
		cfg.ClientID = c.ClientID
	}

	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = c.ProducerRetries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(c.ProducerCompression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 10 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second
	return cfg
}
