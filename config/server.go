package config

import "fmt"

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	// Addr is the listen address of the REST API.
	Addr string `json:"addr"`
	// MetricsIntervalSeconds is the period of the fleet snapshot loop.
	MetricsIntervalSeconds int `json:"metrics_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MetricsIntervalSeconds <= 0 {
		c.MetricsIntervalSeconds = 15
	}
}

// Validate checks mandatory fields.
func (c ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	return nil
}
