// Package config loads the YAML configuration for the udpnatd relay
// binary, following the same load-then-default idiom the relay's original
// configuration loader used.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level udpnatd configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	Table    TableConfig    `yaml:"table"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Fwmark   uint32         `yaml:"fwmark"` // 0 = disabled
}

// ListenConfig is the inbound UDP socket the relay accepts client traffic
// on.
type ListenConfig struct {
	Addr string `yaml:"addr"`
}

// TableConfig tunes the flow table's lifecycle constants.
type TableConfig struct {
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	UplinkQueueDepth int           `yaml:"uplink_queue_depth"`
}

// UpstreamConfig selects and configures the outbound dispatcher. Kind is
// either "plain" (bare UDP relay) or "outline" (Shadowsocks-over-WebSocket).
type UpstreamConfig struct {
	Kind string `yaml:"kind"`

	// Used when Kind == "plain".
	Target string `yaml:"target"`

	// Used when Kind == "outline".
	Endpoint          string  `yaml:"endpoint"`
	Cipher            string  `yaml:"cipher"`
	Secret            string  `yaml:"secret"`
	DialRatePerSecond float64 `yaml:"dial_rate_per_second"`
	DialBurst         int     `yaml:"dial_burst"`
}

// MetricsConfig controls the optional Prometheus exposition endpoint.
type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
}

// Load reads and defaults the configuration at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Addr == "" {
		c.Listen.Addr = "127.0.0.1:7000"
	}
	if c.Table.IdleTimeout == 0 {
		c.Table.IdleTimeout = 30 * time.Second
	}
	if c.Table.SweepInterval == 0 {
		c.Table.SweepInterval = 10 * time.Second
	}
	if c.Table.UplinkQueueDepth == 0 {
		c.Table.UplinkQueueDepth = 64
	}
	if c.Upstream.Kind == "" {
		c.Upstream.Kind = "plain"
	}
	if c.Upstream.Kind == "outline" {
		if c.Upstream.DialRatePerSecond == 0 {
			c.Upstream.DialRatePerSecond = 20
		}
		if c.Upstream.DialBurst == 0 {
			c.Upstream.DialBurst = 5
		}
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9090"
	}
}

func (c *Config) validate() error {
	switch c.Upstream.Kind {
	case "plain":
		if c.Upstream.Target == "" {
			return fmt.Errorf("upstream.target is required for kind \"plain\"")
		}
	case "outline":
		if c.Upstream.Endpoint == "" || c.Upstream.Cipher == "" || c.Upstream.Secret == "" {
			return fmt.Errorf("upstream.endpoint, cipher and secret are required for kind \"outline\"")
		}
	default:
		return fmt.Errorf("unknown upstream.kind %q", c.Upstream.Kind)
	}
	return nil
}
