package config

import "fmt"

// ExchangesConfig binds collector.exchanges.{name}.* from the config file.
type ExchangesConfig struct {
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
}

// ExchangeConfig is one exchange's connector settings: which symbols
// and data types to subscribe to, order-book depth, REST poll
// interval, and the token-bucket limits guarding its egress IP.
type ExchangeConfig struct {
	Enabled                 bool       `yaml:"enabled"`
	MarketType              string     `yaml:"market_type"`
	Symbols                 []string   `yaml:"symbols"`
	DataTypes               []string   `yaml:"data_types"`
	DepthLimit              int        `yaml:"depth_limit"`
	SnapshotIntervalSeconds int        `yaml:"snapshot_interval_seconds"`
	RateLimits              RateLimits `yaml:"rate_limits"`
	SecondaryIPs            []string   `yaml:"secondary_ips"`
}

// RateLimits configures the per-(exchange, IP) token bucket. Weight
// and order limits are exchange-specific units (Binance request
// weight, order-rate caps); requests_per_minute is the plain REST
// poller ceiling.
type RateLimits struct {
	WeightPerMinute   int `yaml:"weight_per_minute"`
	RequestsPerMinute int `yaml:"requests_per_minute"`
	OrdersPerSecond   int `yaml:"orders_per_second"`
}

// RPS converts the configured per-minute request budget into the
// requests-per-second rate golang.org/x/time/rate expects.
func (r RateLimits) RPS() float64 {
	return float64(r.RequestsPerMinute) / 60.0
}

func (c ExchangesConfig) Validate() error {
	for name, ex := range c.Exchanges {
		if err := ex.Validate(); err != nil {
			return fmt.Errorf("collector.exchanges.%s: %w", name, err)
		}
	}
	return nil
}

func (e ExchangeConfig) Validate() error {
	if !e.Enabled {
		return nil
	}
	switch e.MarketType {
	case "spot", "perpetual", "options":
	default:
		return fmt.Errorf("market_type must be one of spot, perpetual, options, got %q", e.MarketType)
	}
	if len(e.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	if len(e.DataTypes) == 0 {
		return fmt.Errorf("data_types cannot be empty")
	}
	if e.DepthLimit <= 0 {
		return fmt.Errorf("depth_limit must be positive, got %d", e.DepthLimit)
	}
	if e.SnapshotIntervalSeconds <= 0 {
		return fmt.Errorf("snapshot_interval_seconds must be positive, got %d", e.SnapshotIntervalSeconds)
	}
	return e.RateLimits.Validate()
}

func (r RateLimits) Validate() error {
	if r.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", r.RequestsPerMinute)
	}
	if r.WeightPerMinute < 0 {
		return fmt.Errorf("weight_per_minute cannot be negative, got %d", r.WeightPerMinute)
	}
	if r.OrdersPerSecond < 0 {
		return fmt.Errorf("orders_per_second cannot be negative, got %d", r.OrdersPerSecond)
	}
	return nil
}
