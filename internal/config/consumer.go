package config

import (
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/schema"
)

// ConsumerConfig binds consumer.* from the config file. Batch sizes
// and flush intervals are keyed by data type string (schema.DataType
// values) so each JetStream consumer can flush trades far more often
// than, say, volatility index snapshots.
type ConsumerConfig struct {
	BatchSizes     map[string]int `yaml:"batch_sizes"`
	FlushIntervals map[string]int `yaml:"flush_intervals"` // milliseconds
	SpoolDir       string         `yaml:"spool_dir"`
}

func (c ConsumerConfig) BatchSize(dataType schema.DataType) int {
	if n, ok := c.BatchSizes[string(dataType)]; ok {
		return n
	}
	return 100
}

func (c ConsumerConfig) FlushInterval(dataType schema.DataType) time.Duration {
	if ms, ok := c.FlushIntervals[string(dataType)]; ok {
		return time.Duration(ms) * time.Millisecond
	}
	return 5 * time.Second
}

func (c ConsumerConfig) Validate() error {
	if c.SpoolDir == "" {
		return fmt.Errorf("consumer.spool_dir cannot be empty")
	}
	for _, dt := range schema.AllDataTypes {
		key := string(dt)
		if n, ok := c.BatchSizes[key]; ok && n <= 0 {
			return fmt.Errorf("consumer.batch_sizes.%s must be positive, got %d", key, n)
		}
		if ms, ok := c.FlushIntervals[key]; ok && ms <= 0 {
			return fmt.Errorf("consumer.flush_intervals.%s must be positive, got %d", key, ms)
		}
	}
	return nil
}
