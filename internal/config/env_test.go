package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverrides_OverridesNestedBool(t *testing.T) {
	cfg := &ColdReplicatorConfig{
		Replicator: ReplicatorConfig{DeleteAfterCopy: false},
	}
	t.Setenv("MARKETPRISM_REPLICATOR_DELETE_AFTER_COPY", "true")
	applyEnvOverrides(cfg)
	assert.True(t, cfg.Replicator.DeleteAfterCopy)
}

func TestApplyEnvOverrides_IgnoresUnsetVars(t *testing.T) {
	cfg := &ColdReplicatorConfig{
		Replicator: ReplicatorConfig{WindowSeconds: 600},
	}
	applyEnvOverrides(cfg)
	assert.Equal(t, 600, cfg.Replicator.WindowSeconds)
}

func TestApplyEnvOverrides_SkipsMapFields(t *testing.T) {
	cfg := &CollectorConfig{
		Collector: ExchangesConfig{Exchanges: map[string]ExchangeConfig{
			"binance": {Enabled: true},
		}},
	}
	t.Setenv("MARKETPRISM_COLLECTOR_EXCHANGES", "ignored")
	applyEnvOverrides(cfg)
	assert.True(t, cfg.Collector.Exchanges["binance"].Enabled)
}
