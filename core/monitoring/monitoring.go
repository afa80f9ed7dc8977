// Package monitoring reports unexpected errors and recovered panics to an
// error tracker. Until Init installs one, reports are discarded.
package monitoring

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Monitor is an error tracker.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic records a value returned by recover.
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor discards every report.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

type holder struct{ Monitor }

var current atomic.Pointer[holder]

func init() { current.Store(&holder{NopMonitor{}}) }

// Init installs m as the process wide monitor and returns the previous one.
// A nil m leaves the current monitor in place.
func Init(m Monitor) Monitor {
	prev := current.Load().Monitor
	if m != nil {
		current.Store(&holder{m})
	}
	return prev
}

// Tags builds the tag set of a report from key value pairs. A trailing key
// without value is dropped.
func Tags(kv ...string) map[string]string {
	tags := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			tags[kv[i]] = kv[i+1]
		}
	}
	return tags
}

// CaptureException reports err. Nil errors are ignored.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		current.Load().CaptureException(err, tags)
	}
}

// CapturePanic reports a recovered panic. recover only works when called
// directly by the deferred function, so callers recover themselves:
//
//	defer func() {
//		if v := recover(); v != nil {
//			monitoring.CapturePanic(v, tags)
//		}
//	}()
func CapturePanic(v any, tags map[string]string) {
	if v != nil {
		current.Load().CapturePanic(v, tags)
	}
}

// PanicError converts a recovered value to an error.
func PanicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}

// Flush waits up to d for buffered reports to be delivered.
func Flush(d time.Duration) {
	current.Load().Flush(d)
}
