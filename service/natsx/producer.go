package natsx

import (
	"context"
	"fmt"
	"time"
)

// Producer publishes by biz name.
type Producer struct {
	c       *Client
	Retries int
	Backoff time.Duration
}

func NewProducer(c *Client) *Producer {
	return &Producer{c: c, Retries: 2, Backoff: 100 * time.Millisecond}
}

// Publish sends once through the route registered for biz.
func (p *Producer) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	r, ok := p.c.route(biz)
	if !ok {
		return fmt.Errorf("route not found: %s", biz)
	}
	switch r.Mode {
	case Core:
		return p.c.sendCore(r.Subject, data, hdr)
	case JetStream:
		return p.c.sendJS(ctx, r.Subject, data, hdr)
	default:
		return fmt.Errorf("unsupported mode %d", r.Mode)
	}
}

// PublishOnce stamps msgID as the dedup header and retries transient
// failures. A retried message keeps its id so the stream stores it once.
func (p *Producer) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	h := make(map[string]string, len(hdr)+1)
	for k, v := range hdr {
		h[k] = v
	}
	if msgID != "" {
		h[MsgIDHeader] = msgID
	}
	var err error
	for i := 0; i <= p.Retries; i++ {
		if err = p.Publish(ctx, biz, data, h); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff):
		}
	}
	return err
}
