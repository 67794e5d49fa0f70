package natsx

import (
	"context"
	"fmt"

	"PRoom/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// MsgIDHeader lets JetStream drop duplicate publishes.
const MsgIDHeader = nats.MsgIdHdr

func newMsg(subject string, data []byte, hdr map[string]string) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = data
	for k, v := range hdr {
		msg.Header.Add(k, v)
	}
	return msg
}

func (c *Client) sendCore(subject string, data []byte, hdr map[string]string) error {
	if err := c.nc.PublishMsg(newMsg(subject, data, hdr)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func (c *Client) sendJS(ctx context.Context, subject string, data []byte, hdr map[string]string) error {
	js, err := c.jetStream()
	if err != nil {
		return err
	}
	ack, err := js.PublishMsg(newMsg(subject, data, hdr), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	logger.Debug("nats published", zap.String("stream", ack.Stream), zap.Uint64("seq", ack.Sequence))
	return nil
}
