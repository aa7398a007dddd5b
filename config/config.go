// Package config loads the node configuration for a netkit process:
// listen addresses, cluster seeds, connect retry tuning, multicast
// group/port, and TLS role — generalized from the teacher's own
// LoadConfig zero-value-backfill pattern.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level node configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Connect   ConnectConfig   `yaml:"connect"`
	Multicast MulticastConfig `yaml:"multicast"`
	TLS       TLSConfig       `yaml:"tls"`
}

type ListenConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

type SeedConfig struct {
	ID   string `yaml:"id"`
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

type ClusterConfig struct {
	SelfID string       `yaml:"self_id"`
	Seeds  []SeedConfig `yaml:"seeds"`
}

// ConnectConfig tunes endpoint.OpenWithRetry's retry behavior for outbound
// connects (spec.md §4.B connect suspension point, generalized the way
// the teacher's HealthcheckConfig tunes its own retry cadence).
type ConnectConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	MaxRetries int           `yaml:"max_retries"`
}

type MulticastConfig struct {
	Group string `yaml:"group"`
	Port  int    `yaml:"port"`
}

type TLSConfig struct {
	Server   bool   `yaml:"server"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads path, unmarshals YAML, and backfills unset fields with
// defaults — the same shape as the teacher's LoadConfig.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Listen.Addr == "" {
		c.Listen.Addr = "127.0.0.1"
	}
	if c.Listen.Port == 0 {
		c.Listen.Port = 9000
	}
	if c.Connect.Timeout == 0 {
		c.Connect.Timeout = 5 * time.Second
	}
	if c.Connect.RetryDelay == 0 {
		c.Connect.RetryDelay = 500 * time.Millisecond
	}
	if c.Connect.MaxRetries == 0 {
		c.Connect.MaxRetries = 3
	}
	if c.Multicast.Group == "" {
		c.Multicast.Group = "239.255.10.10"
	}
	if c.Multicast.Port == 0 {
		c.Multicast.Port = 9100
	}
}
