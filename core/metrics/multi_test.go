package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	cycles, trips int
	err           error
}

func (c *countingSink) RecordDispatchCycle(DispatchCycle) error {
	c.cycles++
	return c.err
}

func (c *countingSink) RecordTripEvent(TripEvent) error {
	c.trips++
	return c.err
}

// cycleOnly implements no optional recorder.
type cycleOnly struct{ cycles int }

func (c *cycleOnly) RecordDispatchCycle(DispatchCycle) error {
	c.cycles++
	return nil
}

func TestMultiSinkForwardsToSupportingSinks(t *testing.T) {
	a, b, minimal := &countingSink{}, &countingSink{}, &cycleOnly{}
	m := NewMultiSink(a, b, minimal)
	require.NoError(t, m.RecordDispatchCycle(DispatchCycle{Fleet: "f"}))
	require.NoError(t, m.RecordTripEvent(TripEvent{TripID: 1}))
	require.NoError(t, m.RecordVisa(VisaEvent{Zone: "z"}))
	assert.Equal(t, 1, a.cycles)
	assert.Equal(t, 1, b.trips)
	assert.Equal(t, 1, minimal.cycles)
}

func TestMultiSinkKeepsGoingAfterFailure(t *testing.T) {
	boom := errors.New("influx down")
	failing, ok := &countingSink{err: boom}, &countingSink{}
	err := NewMultiSink(failing, ok).RecordTripEvent(TripEvent{TripID: 2})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.trips)
}
