package clickhouse

import "time"

// Config configures the hot-tier ClickHouse connection. The native
// protocol (port 9000) is tried first; HTTP (port 8123) is the
// fallback when the native dial fails, per spec.
type Config struct {
	NativeAddr string
	HTTPAddr   string
	Database   string
	Username   string
	Password   string

	PoolMin        int
	PoolMax        int
	AcquireTimeout time.Duration
	InsertTimeout  time.Duration

	MaxRetries int
	RetryBase  time.Duration
}

func DefaultConfig() Config {
	return Config{
		NativeAddr:     "localhost:9000",
		HTTPAddr:       "localhost:8123",
		Database:       "marketprism_hot",
		PoolMin:        2,
		PoolMax:        16,
		AcquireTimeout: 5 * time.Second,
		InsertTimeout:  30 * time.Second,
		MaxRetries:     3,
		RetryBase:      500 * time.Millisecond,
	}
}
