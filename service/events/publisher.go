// Package events fans out room lifecycle events to NATS or Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"PRoom/module/room/model"
	"PRoom/service/kafka"
	"PRoom/service/natsx"
)

// Header names carried with every message.
const (
	HeaderKind   = "proom-kind"
	HeaderGameID = "proom-game"
)

func encode(ev *model.LifecycleEvent) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode lifecycle event %s: %w", ev.Id, err)
	}
	return b, nil
}

func headers(ev *model.LifecycleEvent) map[string]string {
	return map[string]string{HeaderKind: ev.Kind, HeaderGameID: ev.GameId}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, *model.LifecycleEvent) error { return nil }
func (Nop) Close() error                                         { return nil }

type natsSender interface {
	RegisterRoute(r natsx.Route) error
	PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error
	Close() error
}

// NatsPublisher publishes each kind on <prefix>.<kind>. The event id is
// the dedup id, so JetStream stores a retried event once.
type NatsPublisher struct {
	m natsSender
}

// NewNatsPublisher registers one route per lifecycle kind on m.
func NewNatsPublisher(m natsSender, prefix string, mode natsx.Mode) (*NatsPublisher, error) {
	for _, kind := range Kinds() {
		if err := m.RegisterRoute(natsx.Route{Biz: kind, Subject: prefix + "." + kind, Mode: mode}); err != nil {
			return nil, fmt.Errorf("register route %s: %w", kind, err)
		}
	}
	return &NatsPublisher{m: m}, nil
}

func (p *NatsPublisher) Publish(ctx context.Context, ev *model.LifecycleEvent) error {
	data, err := encode(ev)
	if err != nil {
		return err
	}
	return p.m.PublishOnce(ctx, ev.Kind, data, headers(ev), ev.Id)
}

func (p *NatsPublisher) Close() error { return p.m.Close() }

type keyedSender interface {
	SendKeyed(topic, key string, value []byte, headers map[string]string) error
	Close() error
}

var _ keyedSender = (*kafka.Producer)(nil)

// KafkaPublisher writes every kind to one topic keyed by game id, so the
// events of a room stay ordered within its partition.
type KafkaPublisher struct {
	s     keyedSender
	topic string
}

func NewKafkaPublisher(s keyedSender, topic string) *KafkaPublisher {
	return &KafkaPublisher{s: s, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *model.LifecycleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(ev)
	if err != nil {
		return err
	}
	return p.s.SendKeyed(p.topic, ev.GameId, data, headers(ev))
}

func (p *KafkaPublisher) Close() error { return p.s.Close() }

// Kinds lists every lifecycle event kind.
func Kinds() []string {
	return []string{
		model.KindCreated, model.KindLoaded, model.KindJoined, model.KindLeft,
		model.KindUpdated, model.KindRaised, model.KindSaved, model.KindClosed,
	}
}
