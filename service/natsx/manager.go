package natsx

import (
	"context"
	"fmt"
)

// Manager is the facade the rest of the service uses.
type Manager struct {
	client   *Client
	producer *Producer
}

// NewManager dials and returns a ready facade.
func NewManager(cfg Config) (*Manager, error) {
	c, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{client: c, producer: NewProducer(c)}, nil
}

func (m *Manager) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *Manager) RegisterRoute(r Route) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.client.RegisterRoute(r)
}

func (m *Manager) Publish(ctx context.Context, biz string, data []byte, hdr map[string]string) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.producer.Publish(ctx, biz, data, hdr)
}

func (m *Manager) PublishOnce(ctx context.Context, biz string, data []byte, hdr map[string]string, msgID string) error {
	if m == nil || m.producer == nil {
		return fmt.Errorf("manager not initialized")
	}
	return m.producer.PublishOnce(ctx, biz, data, hdr, msgID)
}
