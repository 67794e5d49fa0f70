package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"PRoom/global/config"
	"PRoom/module/room/model"
	"PRoom/service/kafka"
	"PRoom/service/natsx"

	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	biz   string
	data  []byte
	hdr   map[string]string
	msgID string
}

type fakeNats struct {
	routes map[string]natsx.Route
	sent   []sent
	fail   error
	closed bool
}

func (f *fakeNats) RegisterRoute(r natsx.Route) error {
	if f.routes == nil {
		f.routes = map[string]natsx.Route{}
	}
	f.routes[r.Biz] = r
	return nil
}

func (f *fakeNats) PublishOnce(_ context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sent{biz: biz, data: data, hdr: hdr, msgID: msgID})
	return nil
}

func (f *fakeNats) Close() error {
	f.closed = true
	return nil
}

func joined() *model.LifecycleEvent {
	return &model.LifecycleEvent{
		Id: "77", Kind: model.KindJoined, Type: model.TypeJoin,
		GameId: "G1", UserId: "U2", ActorNr: 2, Timestamp: "2026-01-02T03:04:05.000Z",
	}
}

func TestNatsPublisher(t *testing.T) {
	f := &fakeNats{}
	p, err := NewNatsPublisher(f, "proom.room", natsx.JetStream)
	require.NoError(t, err)
	require.Len(t, f.routes, len(Kinds()))
	assert.Equal(t, "proom.room.closed", f.routes[model.KindClosed].Subject)
	assert.Equal(t, natsx.JetStream, f.routes[model.KindClosed].Mode)

	require.NoError(t, p.Publish(context.Background(), joined()))
	require.Len(t, f.sent, 1)
	got := f.sent[0]
	assert.Equal(t, model.KindJoined, got.biz)
	assert.Equal(t, "77", got.msgID)
	assert.Equal(t, "G1", got.hdr[HeaderGameID])

	var back model.LifecycleEvent
	require.NoError(t, json.Unmarshal(got.data, &back))
	assert.Equal(t, *joined(), back)

	f.fail = errors.New("nats down")
	assert.EqualError(t, p.Publish(context.Background(), joined()), "nats down")
	require.NoError(t, p.Close())
	assert.True(t, f.closed)
}

func TestKafkaPublisher(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev model.LifecycleEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.GameId != "G1" || ev.Kind != model.KindJoined {
			return errors.New("unexpected event")
		}
		return nil
	})
	p := NewKafkaPublisher(kafka.NewProducer(sp), "proom.room.lifecycle")
	require.NoError(t, p.Publish(context.Background(), joined()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, joined()), context.Canceled)
	require.NoError(t, p.Close())
}

func TestNewSink(t *testing.T) {
	s, err := New(config.EventsConfig{Sink: config.SinkNone})
	require.NoError(t, err)
	assert.Equal(t, Nop{}, s)
	assert.NoError(t, s.Publish(context.Background(), joined()))

	_, err = New(config.EventsConfig{Sink: "sqs"})
	assert.Error(t, err)
}
