// Package monitoring reports control plane errors to Sentry.
package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/kilianp07/fleetcore/config"
	coremon "github.com/kilianp07/fleetcore/core/monitoring"
)

// SentryMonitor sends reports through a dedicated Sentry hub.
type SentryMonitor struct {
	hub *sentry.Hub
}

// NewSentryMonitor returns a NopMonitor when cfg has no DSN. Cancellations
// are part of shutdown and never reported.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if !cfg.Enabled() {
		return coremon.NopMonitor{}, nil
	}
	return newSentryMonitor(cfg, nil)
}

func newSentryMonitor(cfg config.SentryConfig, transport sentry.Transport) (*SentryMonitor, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		ServerName:       cfg.ServerName,
		SampleRate:       cfg.SampleRate,
		TracesSampleRate: cfg.TracesSampleRate,
		AttachStacktrace: true,
		Transport:        transport,
		BeforeSend:       dropCancellations,
	})
	if err != nil {
		return nil, err
	}
	return &SentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func dropCancellations(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if hint != nil && errors.Is(hint.OriginalException, context.Canceled) {
		return nil
	}
	return event
}

// CaptureException reports err with tags set on its scope.
func (s *SentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

// CapturePanic reports a recovered value and flushes, since the process may
// be about to exit.
func (s *SentryMonitor) CapturePanic(v any, tags map[string]string) {
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetLevel(sentry.LevelFatal)
		s.hub.Recover(v)
	})
	s.hub.Flush(2 * time.Second)
}

// Flush waits for queued events.
func (s *SentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
