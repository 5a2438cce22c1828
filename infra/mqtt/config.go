package mqtt

import (
	"fmt"
	"strings"
)

// Config defines the connection parameters for the Paho MQTT client used
// by the telemetry surface.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TelemetryPrefix is the topic prefix vehicles publish reports on;
	// the truck id is the last topic segment.
	TelemetryPrefix string `json:"telemetry_prefix"`
	QoS             byte   `json:"qos"`
}

// SetDefaults fills unset values.
func (c *Config) SetDefaults() {
	if c.TelemetryPrefix == "" {
		c.TelemetryPrefix = "fleet/telemetry"
	}
}

// Validate checks the configuration when the surface is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	return nil
}

func (c Config) telemetryTopic() string {
	return strings.TrimSuffix(c.TelemetryPrefix, "/") + "/+"
}
