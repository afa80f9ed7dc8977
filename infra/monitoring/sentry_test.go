package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/config"
	coremon "github.com/kilianp07/fleetcore/core/monitoring"
)

// captureTransport keeps events in memory. Methods it does not override
// are never called by these tests.
type captureTransport struct {
	sentry.Transport
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captureTransport) Configure(sentry.ClientOptions) {}
func (c *captureTransport) Flush(time.Duration) bool       { return true }
func (c *captureTransport) SendEvent(e *sentry.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureTransport) sent() []*sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*sentry.Event(nil), c.events...)
}

func newTestMonitor(t *testing.T) (*SentryMonitor, *captureTransport) {
	t.Helper()
	tr := &captureTransport{}
	m, err := newSentryMonitor(config.SentryConfig{DSN: "https://public@example.com/1", Environment: "test"}, tr)
	require.NoError(t, err)
	return m, tr
}

func TestDisabledWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestCaptureExceptionTagsEvent(t *testing.T) {
	m, tr := newTestMonitor(t)
	m.CaptureException(errors.New("publish failed"), map[string]string{"module": "mqtt", "carrier": "c1"})
	m.CaptureException(nil, nil)

	events := tr.sent()
	require.Len(t, events, 1)
	assert.Equal(t, "mqtt", events[0].Tags["module"])
	assert.Equal(t, "c1", events[0].Tags["carrier"])
	assert.Equal(t, "test", events[0].Environment)
}

func TestCancellationsAreDropped(t *testing.T) {
	m, tr := newTestMonitor(t)
	m.CaptureException(fmt.Errorf("send move: %w", context.Canceled), nil)
	assert.Empty(t, tr.sent())
}

func TestCapturePanicIsFatal(t *testing.T) {
	m, tr := newTestMonitor(t)
	m.CapturePanic("worker crashed", map[string]string{"module": "router"})
	events := tr.sent()
	require.Len(t, events, 1)
	assert.Equal(t, sentry.LevelFatal, events[0].Level)
	assert.Equal(t, "router", events[0].Tags["module"])
}
