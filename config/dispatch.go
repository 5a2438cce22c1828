package config

import (
	"fmt"
	"time"

	"github.com/agrilink/fleetcore/core/matching"
)

// DispatchConfig tunes the coordinator and the matching engine.
type DispatchConfig struct {
	// Weights parameterizes candidate scoring. Zero weights fall back to
	// the engine defaults.
	Weights matching.Weights `json:"weights"`
	// MatchTimeoutSeconds bounds a single matching round.
	MatchTimeoutSeconds int `json:"match_timeout_seconds"`
	// SuggestionLimit caps the number of candidates returned per round.
	SuggestionLimit int `json:"suggestion_limit"`
	// QueueSize bounds each event stream subscriber.
	QueueSize int `json:"queue_size"`
}

// SetDefaults applies sane defaults.
func (c *DispatchConfig) SetDefaults() {
	if c.MatchTimeoutSeconds <= 0 {
		c.MatchTimeoutSeconds = 2
	}
	if c.SuggestionLimit <= 0 {
		c.SuggestionLimit = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
}

// Validate checks mandatory fields.
func (c DispatchConfig) Validate() error {
	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be positive")
	}
	return nil
}

// MatchTimeout returns the matching deadline as a duration.
func (c DispatchConfig) MatchTimeout() time.Duration {
	return time.Duration(c.MatchTimeoutSeconds) * time.Second
}
