package config

import (
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/replicate"
)

// ReplicatorConfig binds replicator.* from the config file.
type ReplicatorConfig struct {
	ColdDatabase      string `yaml:"cold_database"`
	WindowSeconds     int    `yaml:"window_seconds"`
	SafetyLagSeconds  int    `yaml:"safety_lag_seconds"`
	DeleteAfterCopy   bool   `yaml:"delete_after_copy"`
	RetentionDaysCold int    `yaml:"retention_days_cold"`
}

func (c ReplicatorConfig) Validate() error {
	if c.ColdDatabase == "" {
		return fmt.Errorf("replicator.cold_database cannot be empty")
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("replicator.window_seconds must be positive, got %d", c.WindowSeconds)
	}
	if c.SafetyLagSeconds <= 0 {
		return fmt.Errorf("replicator.safety_lag_seconds must be positive, got %d", c.SafetyLagSeconds)
	}
	if c.RetentionDaysCold <= 0 {
		return fmt.Errorf("replicator.retention_days_cold must be positive, got %d", c.RetentionDaysCold)
	}
	return nil
}

// ToReplicateConfig builds replicate.Config for the given tables,
// leaving poll interval and retry count at their package defaults.
func (c ReplicatorConfig) ToReplicateConfig(tables []string) replicate.Config {
	cfg := replicate.DefaultConfig(tables)
	cfg.WindowSize = time.Duration(c.WindowSeconds) * time.Second
	cfg.SafetyLag = time.Duration(c.SafetyLagSeconds) * time.Second
	cfg.DeleteAfterCopy = c.DeleteAfterCopy
	return cfg
}
