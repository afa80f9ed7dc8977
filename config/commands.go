package config

import (
	"fmt"
	"time"
)

// CommandsConfig tunes outbound carrier requests.
type CommandsConfig struct {
	// ReplyTimeoutSeconds bounds the wait for a carrier acknowledgment.
	ReplyTimeoutSeconds int `json:"reply_timeout_seconds"`
	// SweepIntervalMS is how often pending requests are checked for expiry.
	SweepIntervalMS int `json:"sweep_interval_ms"`
}

// SetDefaults fills unset fields.
func (c *CommandsConfig) SetDefaults() {
	if c.ReplyTimeoutSeconds <= 0 {
		c.ReplyTimeoutSeconds = 10
	}
	if c.SweepIntervalMS <= 0 {
		c.SweepIntervalMS = 500
	}
}

// Validate checks that expired requests are noticed before the next timeout.
func (c CommandsConfig) Validate() error {
	if time.Duration(c.SweepIntervalMS)*time.Millisecond > c.ReplyTimeout() {
		return fmt.Errorf("commands: sweep_interval_ms exceeds reply_timeout_seconds")
	}
	return nil
}

// ReplyTimeout returns the acknowledgment timeout.
func (c CommandsConfig) ReplyTimeout() time.Duration {
	return time.Duration(c.ReplyTimeoutSeconds) * time.Second
}

// SweepInterval returns the expiry check period.
func (c CommandsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// RoutingConfig tunes the station graph oracle.
type RoutingConfig struct {
	// SpeedMPS converts route lengths into ETAs.
	SpeedMPS float64 `json:"speed_mps"`
	// SnapDistance is the radius within which a pose snaps to a station.
	SnapDistance float64 `json:"snap_distance"`
	// Cache memoises routes between identical endpoints.
	Cache bool `json:"cache"`
}

// SetDefaults fills unset fields.
func (c *RoutingConfig) SetDefaults() {
	if c.SpeedMPS <= 0 {
		c.SpeedMPS = 1
	}
	if c.SnapDistance <= 0 {
		c.SnapDistance = 1
	}
}
