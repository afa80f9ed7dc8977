package config

import "fmt"

// SentryConfig enables error reporting to Sentry. Reporting is off while
// DSN is empty.
type SentryConfig struct {
	DSN         string `json:"dsn"`
	Environment string `json:"environment"`
	Release     string `json:"release"`
	ServerName  string `json:"server_name"`
	// SampleRate is the share of error events sent, 0 meaning all.
	SampleRate       float64 `json:"sample_rate"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
}

// Enabled reports whether errors are sent to Sentry.
func (c SentryConfig) Enabled() bool { return c.DSN != "" }

// Validate checks the sample rates.
func (c SentryConfig) Validate() error {
	for name, v := range map[string]float64{"sample_rate": c.SampleRate, "traces_sample_rate": c.TracesSampleRate} {
		if v < 0 || v > 1 {
			return fmt.Errorf("sentry: %s must be within [0,1], got %v", name, v)
		}
	}
	return nil
}
