package events

import (
	"context"
	"fmt"
	"strings"

	"PRoom/global/config"
	"PRoom/logger"
	"PRoom/module/room/model"
	"PRoom/service/kafka"
	"PRoom/service/natsx"

	"go.uber.org/zap"
)

// Sink is a publisher that owns a connection.
type Sink interface {
	Publish(ctx context.Context, ev *model.LifecycleEvent) error
	Close() error
}

// New builds the sink selected by c.Sink.
func New(c config.EventsConfig) (Sink, error) {
	switch strings.ToLower(c.Sink) {
	case "", config.SinkNone:
		return Nop{}, nil
	case config.SinkNats:
		m, err := natsx.NewManager(natsx.Config{
			Servers:  c.NatsServers,
			Name:     "proom-events",
			User:     c.NatsUser,
			Password: c.NatsPassword,
		})
		if err != nil {
			return nil, err
		}
		mode := natsx.Core
		if c.NatsJetStream {
			mode = natsx.JetStream
		}
		p, err := NewNatsPublisher(m, c.SubjectPrefix, mode)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		logger.Info("lifecycle events on nats", zap.Strings("servers", c.NatsServers), zap.String("prefix", c.SubjectPrefix))
		return p, nil
	case config.SinkKafka:
		prod, err := kafka.Dial(kafka.DefaultConfig(c.KafkaBrokers...), c.KafkaTopic)
		if err != nil {
			return nil, err
		}
		logger.Info("lifecycle events on kafka", zap.Strings("brokers", c.KafkaBrokers), zap.String("topic", c.KafkaTopic))
		return NewKafkaPublisher(prod, c.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown events sink %q", c.Sink)
	}
}
