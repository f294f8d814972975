package config

import (
	"fmt"
	"time"
)

// NatsConfig binds nats.* from the config file.
type NatsConfig struct {
	Servers              []string `yaml:"servers"`
	ReconnectMaxAttempts int      `yaml:"reconnect_max_attempts"`
	AckWaitSeconds       int      `yaml:"ack_wait_seconds"`
}

func (c NatsConfig) AckWait() time.Duration {
	return time.Duration(c.AckWaitSeconds) * time.Second
}

func (c NatsConfig) Validate() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("nats.servers cannot be empty")
	}
	if c.ReconnectMaxAttempts <= 0 {
		return fmt.Errorf("nats.reconnect_max_attempts must be positive, got %d", c.ReconnectMaxAttempts)
	}
	if c.AckWaitSeconds <= 0 {
		return fmt.Errorf("nats.ack_wait_seconds must be positive, got %d", c.AckWaitSeconds)
	}
	return nil
}
