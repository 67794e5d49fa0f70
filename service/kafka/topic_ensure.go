package kafka

import (
	"errors"
	"fmt"

	"PRoom/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopics creates the missing topics. Existing ones are left alone.
func EnsureTopics(admin sarama.ClusterAdmin, c Config, topics ...string) error {
	minISR := "1"
	if c.ReplicationFactor >= 3 {
		minISR = "2"
	}
	for _, t := range topics {
		descs, err := admin.DescribeTopics([]string{t})
		if err != nil {
			return fmt.Errorf("describe topic %s: %w", t, err)
		}
		if len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError) {
			logger.Debug("kafka topic exists", zap.String("topic", t), zap.Int("partitions", len(descs[0].Partitions)))
			continue
		}
		td := &sarama.TopicDetail{
			NumPartitions:     c.PartitionsPerTopic,
			ReplicationFactor: c.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(t, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				continue
			}
			return fmt.Errorf("create topic %s: %w", t, err)
		}
		logger.Info("kafka topic created", zap.String("topic", t),
			zap.Int32("partitions", c.PartitionsPerTopic), zap.Int16("rf", c.ReplicationFactor))
	}
	return nil
}

func strPtr(s string) *string { return &s }
