package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tunables is the hot reloadable part of the configuration. Absent keys
// leave the current value alone.
type Tunables struct {
	LogLevel     string `yaml:"logLevel"`
	MaxRetries   *int   `yaml:"maxRetries"`
	StoreTimeout string `yaml:"storeTimeout"`
}

// ParseTunables reads a YAML document such as:
//
//	logLevel: info
//	maxRetries: 5
//	storeTimeout: 1500ms
func ParseTunables(doc string) (Tunables, error) {
	var t Tunables
	if strings.TrimSpace(doc) == "" {
		return t, nil
	}
	if err := yaml.Unmarshal([]byte(doc), &t); err != nil {
		return Tunables{}, fmt.Errorf("parse tunables: %w", err)
	}
	return t, nil
}

// Targets receive the tunables.
type Targets struct {
	SetLogLevel     func(string) error
	SetMaxRetries   func(int)
	SetStoreTimeout func(time.Duration)
}

// ApplyTunables validates every value before changing anything, so a bad
// document leaves the running settings untouched.
func ApplyTunables(t Tunables, to Targets) error {
	var timeout time.Duration
	if t.StoreTimeout != "" {
		d, err := time.ParseDuration(t.StoreTimeout)
		if err != nil {
			return fmt.Errorf("storeTimeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("storeTimeout must be positive, got %s", d)
		}
		timeout = d
	}
	if t.MaxRetries != nil && *t.MaxRetries < 1 {
		return fmt.Errorf("maxRetries must be >= 1, got %d", *t.MaxRetries)
	}
	if t.LogLevel != "" && to.SetLogLevel != nil {
		if err := to.SetLogLevel(t.LogLevel); err != nil {
			return err
		}
	}
	if t.MaxRetries != nil && to.SetMaxRetries != nil {
		to.SetMaxRetries(*t.MaxRetries)
	}
	if timeout > 0 && to.SetStoreTimeout != nil {
		to.SetStoreTimeout(timeout)
	}
	return nil
}
