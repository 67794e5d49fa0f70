package config

import (
	"fmt"
	"strings"

	"PRoom/logger"
	"PRoom/tools/ids"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "PROOM_"

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	SinkNone  = "none"
	SinkNats  = "nats"
	SinkKafka = "kafka"
)

var Global AppConfig

// Load parses the environment into a fresh AppConfig.
func Load() (AppConfig, error) {
	var c AppConfig
	if err := env.ParseWithOptions(&c, env.Options{Prefix: envPrefix}); err != nil {
		return AppConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return AppConfig{}, err
	}
	return c, nil
}

func (c *AppConfig) Validate() error {
	switch strings.ToLower(c.Store) {
	case StoreRedis, StoreMemory:
	case StorePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store %q requires %sPG_URL", c.Store, envPrefix)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	switch strings.ToLower(c.Events.Sink) {
	case SinkNone, SinkNats, SinkKafka:
	default:
		return fmt.Errorf("unknown events sink %q", c.Events.Sink)
	}
	if c.Lifecycle.MaxRetries < 1 {
		return fmt.Errorf("lifecycle max retries must be >= 1, got %d", c.Lifecycle.MaxRetries)
	}
	if c.Lifecycle.StoreTimeout <= 0 {
		return fmt.Errorf("lifecycle store timeout must be positive")
	}
	if c.Auth.JWTSecret == "" && !c.Auth.TrustHeader {
		return fmt.Errorf("either %sAUTH_JWT_SECRET or %sAUTH_TRUST_HEADER=true is required", envPrefix, envPrefix)
	}
	return nil
}

// ConfigAll loads Global and applies process wide settings.
func ConfigAll() error {
	c, err := Load()
	if err != nil {
		return err
	}
	Global = c
	ConfigIds()
	return nil
}

func ConfigIds() {
	logger.Infof("node id %d", Global.NodeId)
	ids.SetNodeID(Global.NodeId)
}
