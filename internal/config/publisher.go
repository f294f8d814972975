package config

import (
	"fmt"
	"time"
)

// PublisherConfig binds publisher.* from the config file.
type PublisherConfig struct {
	MaxBatchSize      int `yaml:"max_batch_size"`
	FlushIntervalMS   int `yaml:"flush_interval_ms"`
	FallbackQueueSize int `yaml:"fallback_queue_size"`
}

func (c PublisherConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

func (c PublisherConfig) Validate() error {
	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("publisher.max_batch_size must be positive, got %d", c.MaxBatchSize)
	}
	if c.FlushIntervalMS <= 0 {
		return fmt.Errorf("publisher.flush_interval_ms must be positive, got %d", c.FlushIntervalMS)
	}
	if c.FallbackQueueSize <= 0 {
		return fmt.Errorf("publisher.fallback_queue_size must be positive, got %d", c.FallbackQueueSize)
	}
	return nil
}
