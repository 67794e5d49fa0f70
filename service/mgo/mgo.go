package mgo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	mgo "PRoom/data/database/mgo/mongoutil"
	"PRoom/logger"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// MongoManager keeps one connection alive in the background: it connects
// with backoff, pings periodically and reconnects after repeated failures.
type MongoManager struct {
	mu        sync.RWMutex
	client    *mgo.Client
	readyCh   chan struct{} // closed on the first successful connect
	readyOnce sync.Once
	startOnce sync.Once

	lastErr atomic.Value // error
}

func NewManager() *MongoManager {
	return &MongoManager{readyCh: make(chan struct{})}
}

var globalMgr = NewManager()

// Manager returns the process wide manager.
func Manager() *MongoManager { return globalMgr }

// StartAsync starts the process wide manager.
func StartAsync(ctx context.Context, cfg *mgo.Config) { globalMgr.StartAsync(ctx, cfg) }

// TryGetDB returns the process wide database if connected.
func TryGetDB() (*mongo.Database, bool) { return globalMgr.TryGetDB() }

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second
	failThresh  = 3
)

// StartAsync runs until ctx is done. Calling it twice is a no-op.
func (m *MongoManager) StartAsync(ctx context.Context, cfg *mgo.Config) {
	m.startOnce.Do(func() {
		go func() {
			for {
				if !m.connect(ctx, cfg) {
					return
				}
				if !m.watch(ctx) {
					return
				}
				logger.Warn("mongo connection lost, reconnecting", zap.Error(m.Err()))
			}
		}()
	})
}

// connect retries with jittered backoff; false means ctx ended.
func (m *MongoManager) connect(ctx context.Context, cfg *mgo.Config) bool {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return false
		}
		cli, err := mgo.NewMongoDB(ctx, cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			logger.Info("mongo connected", zap.String("db", cfg.Database))
			return true
		}
		m.lastErr.Store(err)

		backoff := baseBackoff << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff / 5)))
		timer := time.NewTimer(backoff - jitter/2)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// watch pings until failThresh consecutive failures (true) or ctx ends
// (false). The client is dropped either way.
func (m *MongoManager) watch(ctx context.Context) bool {
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	fail := 0
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			db, ok := m.TryGetDB()
			if !ok {
				return true
			}
			if err := db.Client().Ping(ctx, nil); err != nil {
				m.lastErr.Store(err)
				if fail++; fail >= failThresh {
					m.drop()
					return true
				}
				continue
			}
			fail = 0
		}
	}
}

func (m *MongoManager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Ready is closed on the first successful connect.
func (m *MongoManager) Ready() <-chan struct{} { return m.readyCh }

// Err returns the last connect or ping error.
func (m *MongoManager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

func (m *MongoManager) TryGetDB() (*mongo.Database, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, false
	}
	return m.client.GetDB(), true
}

// WaitReady blocks until connected or ctx is done.
func (m *MongoManager) WaitReady(ctx context.Context) error {
	if _, ok := m.TryGetDB(); ok {
		return nil
	}
	if m.readyCh == nil {
		return fmt.Errorf("mongo manager not started")
	}
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
