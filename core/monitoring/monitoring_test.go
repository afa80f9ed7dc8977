package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	errs   []error
	panics []any
	tags   []map[string]string
}

func (r *recorder) CaptureException(err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recorder) CapturePanic(v any, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panics = append(r.panics, v)
	r.tags = append(r.tags, tags)
}

func (r *recorder) Flush(time.Duration) {}

func install(t *testing.T) *recorder {
	t.Helper()
	rec := &recorder{}
	prev := Init(rec)
	t.Cleanup(func() { Init(prev) })
	return rec
}

func TestReportsReachInstalledMonitor(t *testing.T) {
	rec := install(t)

	CaptureException(errors.New("publish failed"), Tags("module", "mqtt", "carrier", "c1"))
	CaptureException(nil, nil)
	func() {
		defer func() {
			if v := recover(); v != nil {
				CapturePanic(v, Tags("module", "router"))
			}
		}()
		panic("worker crashed")
	}()

	require.Len(t, rec.errs, 1)
	assert.EqualError(t, rec.errs[0], "publish failed")
	assert.Equal(t, []any{"worker crashed"}, rec.panics)
	assert.Equal(t, map[string]string{"module": "mqtt", "carrier": "c1"}, rec.tags[0])
}

func TestInitKeepsMonitorOnNil(t *testing.T) {
	rec := install(t)
	assert.Same(t, rec, Init(nil))
	CaptureException(errors.New("x"), nil)
	assert.Len(t, rec.errs, 1)
}

func TestConcurrentCapture(t *testing.T) {
	rec := install(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			CaptureException(errors.New("x"), nil)
		}()
	}
	wg.Wait()
	assert.Len(t, rec.errs, 20)
}

func TestTagsDropsEmptyValues(t *testing.T) {
	assert.Equal(t, map[string]string{"kind": "book"}, Tags("kind", "book", "carrier", "", "dangling"))
}

func TestPanicError(t *testing.T) {
	base := errors.New("bad")
	assert.ErrorIs(t, PanicError(base), base)
	assert.EqualError(t, PanicError(42), "panic: 42")
}
