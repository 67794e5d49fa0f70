package natsx

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"PRoom/logger"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Mode selects how a route publishes.
type Mode int

const (
	Core      Mode = iota // fire and forget
	JetStream             // persisted, acked by the stream
)

// Route binds a biz name to a subject.
type Route struct {
	Biz     string
	Subject string
	Mode    Mode
}

// Config is the connection setup. Credentials are optional.
type Config struct {
	Servers         []string
	Name            string
	User            string
	Password        string
	ReconnectWait   time.Duration
	Timeout         time.Duration
	PublishAsyncMax int
}

func (c *Config) withDefaults() {
	if c.Name == "" {
		c.Name = "proom"
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 500 * time.Millisecond
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.PublishAsyncMax == 0 {
		c.PublishAsyncMax = 4096
	}
}

func (c Config) options() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(c.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if c.User != "" {
		opts = append(opts, nats.UserInfo(c.User, c.Password))
	}
	return opts
}

// Client owns one connection and its routing table.
type Client struct {
	cfg Config
	nc  *nats.Conn

	jsOnce sync.Once
	js     nats.JetStreamContext
	jsErr  error

	mu     sync.RWMutex
	routes map[string]Route
}

// Dial connects to the configured servers.
func Dial(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	cfg.withDefaults()
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Client{cfg: cfg, nc: nc, routes: make(map[string]Route)}, nil
}

// Close flushes pending publishes and closes the connection.
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

func (c *Client) jetStream() (nats.JetStreamContext, error) {
	c.jsOnce.Do(func() {
		c.js, c.jsErr = c.nc.JetStream(nats.PublishAsyncMaxPending(c.cfg.PublishAsyncMax))
	})
	return c.js, c.jsErr
}

// RegisterRoute adds or replaces the route for r.Biz.
func (c *Client) RegisterRoute(r Route) error {
	if r.Biz == "" || r.Subject == "" {
		return errors.New("invalid route")
	}
	if r.Mode == JetStream {
		if _, err := c.jetStream(); err != nil {
			return fmt.Errorf("init jetstream: %w", err)
		}
	}
	c.mu.Lock()
	c.routes[r.Biz] = r
	c.mu.Unlock()
	return nil
}

func (c *Client) route(biz string) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.routes[biz]
	return r, ok
}
