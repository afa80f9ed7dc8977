package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/dispatch"
	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

type fakeEngine struct {
	mu      sync.Mutex
	marked  []string
	runs    [][]string
	panicky bool
}

func (e *fakeEngine) MarkChanged(f string) {
	e.mu.Lock()
	e.marked = append(e.marked, f)
	e.mu.Unlock()
}

func (e *fakeEngine) Run(_ context.Context, fleets ...string) []dispatch.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.panicky {
		e.panicky = false
		panic("solver exploded")
	}
	e.runs = append(e.runs, fleets)
	out := make([]dispatch.Result, len(fleets))
	for i, f := range fleets {
		out[i] = dispatch.Result{Fleet: f}
	}
	return out
}

func (e *fakeEngine) snapshot() ([]string, [][]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.marked...), append([][]string(nil), e.runs...)
}

func seed(t *testing.T, at time.Time) store.Store {
	t.Helper()
	st := store.NewMemoryStore()
	require.NoError(t, st.Update(context.Background(), func(tx store.Tx) error {
		for _, f := range []string{"f1", "f2"} {
			if err := tx.PutFleet(model.Fleet{Name: f, Status: model.FleetRunning}); err != nil {
				return err
			}
		}
		trips := []model.Trip{
			{ID: 1, Fleet: "f1", Status: model.TripBooked, Metadata: map[string]string{model.MetaScheduledStart: at.Format(time.RFC3339)}},
			{ID: 2, Fleet: "f2", Status: model.TripBooked},
		}
		for _, tr := range trips {
			if err := tx.PutTrip(tr); err != nil {
				return err
			}
			if err := tx.PutPendingTrip(model.PendingTrip{TripID: tr.ID, Fleet: tr.Fleet}); err != nil {
				return err
			}
		}
		return nil
	}))
	return st
}

func TestDueWindow(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	s := New(seed(t, at), &fakeEngine{}, nil, Config{}, nil)
	ctx := context.Background()

	due, err := s.Due(ctx, at.Add(-time.Minute), at)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, due)

	due, err = s.Due(ctx, at, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, due, "a trip already due is not flagged twice")
}

func TestTickFlagsDueFleetsAndRunsAll(t *testing.T) {
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	eng := &fakeEngine{}
	s := New(seed(t, at), eng, nil, Config{}, nil)
	s.last = at.Add(-time.Second)
	s.now = func() time.Time { return at.Add(time.Second) }
	var got []dispatch.Result
	s.OnResult(func(r []dispatch.Result) { got = r })

	s.Tick(context.Background())
	marked, runs := eng.snapshot()
	assert.Equal(t, []string{"f1"}, marked)
	require.Len(t, runs, 1)
	assert.Empty(t, runs[0], "a tick runs every fleet")
	assert.NotNil(t, got)

	s.Tick(context.Background())
	marked, _ = eng.snapshot()
	assert.Len(t, marked, 1)
}

func TestRunReactsToBusSignals(t *testing.T) {
	eng := &fakeEngine{}
	bus := eventbus.New()
	s := New(store.NewMemoryStore(), eng, bus, Config{IntervalSeconds: 3600}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		bus.Publish(events.TripEvent{TripID: 3, Fleet: "f3", From: model.TripAssigned, To: model.TripSucceeded})
		_, runs := eng.snapshot()
		for _, r := range runs {
			if len(r) == 1 && r[0] == "f3" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(events.TripEvent{TripID: 4, Fleet: "f4", From: model.TripBooked, To: model.TripAssigned})
	bus.Publish(events.RedispatchNeeded{Fleet: "f5"})
	require.Eventually(t, func() bool {
		_, runs := eng.snapshot()
		for _, r := range runs {
			if len(r) == 1 && r[0] == "f5" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	_, runs := eng.snapshot()
	for _, r := range runs {
		assert.NotEqual(t, []string{"f4"}, r, "non terminal transitions do not redispatch")
	}
}

func TestRunSurvivesPanickingEngine(t *testing.T) {
	eng := &fakeEngine{panicky: true}
	bus := eventbus.New()
	s := New(store.NewMemoryStore(), eng, bus, Config{IntervalSeconds: 3600}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool {
		bus.Publish(events.RedispatchNeeded{Fleet: "f1"})
		_, runs := eng.snapshot()
		return len(runs) > 0
	}, 2*time.Second, 10*time.Millisecond)
}
