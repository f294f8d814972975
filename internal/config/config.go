// Package config loads and validates the per-binary YAML configuration
// for the collector, hot-consumer, and cold-replicator, with a
// MARKETPRISM_-prefixed environment variable override layer on top.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// validatable is implemented by every per-binary Config.
type validatable interface {
	Validate() error
}

// CollectorConfig is cmd/collector's configuration file shape.
type CollectorConfig struct {
	Nats      NatsConfig      `yaml:"nats"`
	Collector ExchangesConfig `yaml:"collector"`
	Publisher PublisherConfig `yaml:"publisher"`
}

func (c *CollectorConfig) Validate() error {
	if err := c.Nats.Validate(); err != nil {
		return err
	}
	if err := c.Collector.Validate(); err != nil {
		return err
	}
	return c.Publisher.Validate()
}

// HotConsumerConfig is cmd/hot-consumer's configuration file shape.
type HotConsumerConfig struct {
	Nats       NatsConfig       `yaml:"nats"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

func (c *HotConsumerConfig) Validate() error {
	if err := c.Nats.Validate(); err != nil {
		return err
	}
	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}
	return c.Consumer.Validate()
}

// ColdReplicatorConfig is cmd/cold-replicator's configuration file shape.
type ColdReplicatorConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Replicator ReplicatorConfig `yaml:"replicator"`
}

func (c *ColdReplicatorConfig) Validate() error {
	if err := c.ClickHouse.Validate(); err != nil {
		return err
	}
	return c.Replicator.Validate()
}

// LoadCollectorConfig reads, env-overrides, and validates a collector
// config file.
func LoadCollectorConfig(path string) (*CollectorConfig, error) {
	return load(path, &CollectorConfig{})
}

// LoadHotConsumerConfig reads, env-overrides, and validates a
// hot-consumer config file.
func LoadHotConsumerConfig(path string) (*HotConsumerConfig, error) {
	return load(path, &HotConsumerConfig{})
}

// LoadColdReplicatorConfig reads, env-overrides, and validates a
// cold-replicator config file.
func LoadColdReplicatorConfig(path string) (*ColdReplicatorConfig, error) {
	return load(path, &ColdReplicatorConfig{})
}

// load reads path as YAML into cfg, applies environment overrides, and
// validates. A non-nil error here should make its caller exit with
// status 2 (invalid configuration).
func load[T validatable](path string, cfg T) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return zero, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return zero, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
