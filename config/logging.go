package config

import "fmt"

var logLevels = map[string]struct{}{
	"trace": {}, "debug": {}, "info": {}, "warn": {}, "error": {},
}

// LoggingConfig controls the global log output.
type LoggingConfig struct {
	// Level is the minimum severity to emit.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if _, ok := logLevels[c.Level]; !ok {
		return fmt.Errorf("unknown log level %s", c.Level)
	}
	return nil
}
