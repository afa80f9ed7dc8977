package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitStateArmClear(t *testing.T) {
	var w WaitState
	w = w.Arm(WaitConveyorSendStart).Arm(WaitDispatchStart)
	require.True(t, w.Has(WaitConveyorSendStart), w.String())
	require.True(t, w.Has(WaitDispatchStart), w.String())

	w = w.Clear(WaitConveyorSendStart)
	assert.False(t, w.Has(WaitConveyorSendStart))
	assert.Equal(t, "dispatch_start", w.String())

	empty := w.Clear(WaitDispatchStart)
	assert.True(t, empty.Empty())
	assert.Equal(t, "none", empty.String())
	assert.False(t, empty.Has(0))
}

func TestDeviceWaits(t *testing.T) {
	start, end, ok := DeviceConveyorSend.Waits()
	require.True(t, ok)
	assert.Equal(t, WaitConveyorSendStart, start)
	assert.Equal(t, WaitConveyorSendEnd, end)

	start, end, ok = DeviceDispatchButton.Waits()
	require.True(t, ok)
	assert.Equal(t, WaitDispatchStart, start)
	assert.Zero(t, end, "dispatch button has no end state")

	_, _, ok = Device("laser").Waits()
	assert.False(t, ok)
}

func TestCarrierAvailability(t *testing.T) {
	c := Carrier{Inducted: true, Initialized: true}
	assert.True(t, c.Available())

	c.TripID = 4
	assert.False(t, c.Available())
	assert.True(t, c.Schedulable())

	c.TripID = 0
	c.Disabled = true
	assert.False(t, c.Available())
	assert.False(t, c.Schedulable())
}

func TestDisableReasonManual(t *testing.T) {
	assert.True(t, ReasonManual.Manual())
	assert.True(t, ReasonEmergencyStop.Manual())
	assert.False(t, ReasonStaleHeartbeat.Manual())
	assert.False(t, ReasonCarrierError.Manual())
}

func TestTripCloneIsDeep(t *testing.T) {
	tr := Trip{Route: []string{"A"}, Metadata: map[string]string{"k": "v"}}
	cp := tr.Clone()
	cp.Route[0] = "B"
	cp.Metadata["k"] = "w"
	assert.Equal(t, []string{"A"}, tr.Route)
	assert.Equal(t, "v", tr.Metadata["k"])
}

func TestTripStatusTerminal(t *testing.T) {
	for _, s := range []TripStatus{TripSucceeded, TripFailed, TripCancelled} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, TripWaitingStation.Terminal())
	assert.False(t, TripAssigned.Terminal())
}
