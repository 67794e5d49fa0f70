package kafka

import (
	"fmt"

	"PRoom/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// Producer sends keyed messages synchronously.
type Producer struct {
	client sarama.Client
	sp     sarama.SyncProducer
}

// Dial connects to the brokers, creates the given topics when asked to,
// and opens a sync producer on the shared client.
func Dial(c Config, topics ...string) (*Producer, error) {
	client, err := sarama.NewClient(c.Brokers, BuildSaramaConfig(c))
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	if c.AutoCreateTopics && len(topics) > 0 {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("kafka admin: %w", err)
		}
		// closing the admin would close the shared client
		if err := EnsureTopics(admin, c, topics...); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	sp, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Producer{client: client, sp: sp}, nil
}

// NewProducer wraps an existing sync producer.
func NewProducer(sp sarama.SyncProducer) *Producer {
	return &Producer{sp: sp}
}

// SendKeyed sends value to topic; messages sharing a key share a partition.
func (p *Producer) SendKeyed(topic, key string, value []byte, headers map[string]string) error {
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	partition, offset, err := p.sp.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s: %w", topic, err)
	}
	logger.Debug("kafka sent", zap.String("topic", topic), zap.String("key", key),
		zap.Int32("partition", partition), zap.Int64("offset", offset))
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.sp == nil {
		return nil
	}
	err := p.sp.Close()
	if p.client != nil && !p.client.Closed() {
		if cerr := p.client.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
