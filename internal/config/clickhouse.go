package config

import (
	"fmt"
	"time"

	"github.com/marketprism/marketprism/internal/store/clickhouse"
)

// ClickHouseConfig binds clickhouse.* from the config file.
type ClickHouseConfig struct {
	Host                string `yaml:"host"`
	PortNative          int    `yaml:"port_native"`
	PortHTTP            int    `yaml:"port_http"`
	Database            string `yaml:"database"`
	Username            string `yaml:"username"`
	Password            string `yaml:"password"`
	PoolMax             int    `yaml:"pool_max"`
	InsertTimeoutSecond int    `yaml:"insert_timeout_seconds"`
}

func (c ClickHouseConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("clickhouse.host cannot be empty")
	}
	if c.PortNative <= 0 {
		return fmt.Errorf("clickhouse.port_native must be positive, got %d", c.PortNative)
	}
	if c.PortHTTP <= 0 {
		return fmt.Errorf("clickhouse.port_http must be positive, got %d", c.PortHTTP)
	}
	if c.Database == "" {
		return fmt.Errorf("clickhouse.database cannot be empty")
	}
	if c.PoolMax <= 0 {
		return fmt.Errorf("clickhouse.pool_max must be positive, got %d", c.PoolMax)
	}
	if c.InsertTimeoutSecond <= 0 {
		return fmt.Errorf("clickhouse.insert_timeout_seconds must be positive, got %d", c.InsertTimeoutSecond)
	}
	return nil
}

// ToStoreConfig builds the clickhouse package's dial config from the
// file-bound settings, keeping pool/retry defaults the file doesn't
// expose.
func (c ClickHouseConfig) ToStoreConfig() clickhouse.Config {
	cfg := clickhouse.DefaultConfig()
	cfg.NativeAddr = fmt.Sprintf("%s:%d", c.Host, c.PortNative)
	cfg.HTTPAddr = fmt.Sprintf("%s:%d", c.Host, c.PortHTTP)
	cfg.Database = c.Database
	cfg.Username = c.Username
	cfg.Password = c.Password
	cfg.PoolMax = c.PoolMax
	cfg.InsertTimeout = time.Duration(c.InsertTimeoutSecond) * time.Second
	return cfg
}
