package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

type recordSink struct{ got []notify.Notification }

func (r *recordSink) Notify(_ context.Context, n notify.Notification) { r.got = append(r.got, n) }

func setup(t *testing.T) (*Monitor, *store.MemoryStore, *eventbus.Bus, *recordSink, *time.Time) {
	t.Helper()
	st := store.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.PutFleet(model.Fleet{Name: "f", Status: model.FleetRunning}); err != nil {
			return err
		}
		return tx.PutCarrier(model.Carrier{Name: "c1", Fleet: "f", Inducted: true, Initialized: true, LastHeartbeat: now})
	}))
	bus := eventbus.New()
	sink := &recordSink{}
	m := NewMonitor(st, Config{HeartbeatTimeoutSeconds: 10}, bus, sink, nil)
	m.now = func() time.Time { return now }
	return m, st, bus, sink, &now
}

func carrier(t *testing.T, st store.Store, name string) model.Carrier {
	t.Helper()
	var c model.Carrier
	require.NoError(t, st.View(context.Background(), func(tx store.Tx) error {
		var err error
		c, err = tx.Carrier(name)
		return err
	}))
	return c
}

func TestCheckDisablesStaleCarrier(t *testing.T) {
	m, st, bus, sink, now := setup(t)
	sub := bus.Subscribe()
	ctx := context.Background()

	stale, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)

	*now = now.Add(11 * time.Second)
	rc := request.New("test")
	stale, err = m.Check(request.With(ctx, rc))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	c := carrier(t, st, "c1")
	assert.True(t, c.Disabled)
	assert.Equal(t, model.ReasonStaleHeartbeat, c.DisableReason)
	assert.Equal(t, []string{"f"}, rc.Fleets())
	assert.Equal(t, events.CarrierDisconnected{Carrier: "c1", Fleet: "f"}, <-sub)
	require.Len(t, sink.got, 1)
	assert.Equal(t, notify.LevelAlert, sink.got[0].Level)

	// already disabled carriers are not reported twice
	stale, err = m.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestCheckSkipsCarrierWithoutHeartbeat(t *testing.T) {
	m, st, _, _, now := setup(t)
	ctx := context.Background()
	require.NoError(t, st.Update(ctx, func(tx store.Tx) error {
		return tx.PutCarrier(model.Carrier{Name: "c2", Fleet: "f", Inducted: true})
	}))
	*now = now.Add(time.Hour)
	stale, err := m.Check(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "c1", stale[0].Name)
	assert.False(t, carrier(t, st, "c2").Disabled)

	changed, err := m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c2", Mode: "fleet"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, carrier(t, st, "c2").Available())
}

func TestHeartbeatReenablesStaleCarrier(t *testing.T) {
	m, st, _, _, now := setup(t)
	ctx := context.Background()
	*now = now.Add(time.Minute)
	_, err := m.Check(ctx)
	require.NoError(t, err)

	changed, err := m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c1", Mode: "fleet", Pose: model.Pose{X: 3}})
	require.NoError(t, err)
	assert.True(t, changed)
	c := carrier(t, st, "c1")
	assert.False(t, c.Disabled)
	assert.True(t, c.AssignNextTask)
	assert.Equal(t, 3.0, c.Pose.X)
	assert.Equal(t, *now, c.LastHeartbeat)
}

func TestHeartbeatKeepsManualStop(t *testing.T) {
	m, st, _, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, m.Disable(ctx, "c1", model.ReasonEmergencyStop))

	changed, err := m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c1", Mode: "fleet"})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.True(t, carrier(t, st, "c1").Disabled)

	err = m.Enable(ctx, "c1", model.ReasonManual)
	assert.ErrorIs(t, err, ErrReasonMismatch)
	require.NoError(t, m.Enable(ctx, "c1", model.ReasonEmergencyStop))
	assert.True(t, carrier(t, st, "c1").Available())
}

func TestHeartbeatErrorDisablesCarrier(t *testing.T) {
	m, st, _, sink, _ := setup(t)
	ctx := context.Background()
	changed, err := m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c1", Mode: "fleet", Error: "lidar fault"})
	require.NoError(t, err)
	assert.True(t, changed)
	c := carrier(t, st, "c1")
	assert.Equal(t, model.ReasonCarrierError, c.DisableReason)
	require.Len(t, sink.got, 1)
	assert.Contains(t, sink.got[0].Message, "lidar fault")

	changed, err = m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c1", Mode: "fleet"})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, carrier(t, st, "c1").Disabled)
}

func TestHeartbeatModeDrivesInitialized(t *testing.T) {
	m, st, _, _, _ := setup(t)
	ctx := context.Background()
	changed, err := m.Heartbeat(ctx, model.CarrierStatus{Carrier: "c1", Mode: ModeBooting})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, carrier(t, st, "c1").Initialized)

	var status model.CarrierStatus
	require.NoError(t, st.View(ctx, func(tx store.Tx) error {
		var err error
		status, err = tx.CarrierStatus("c1")
		return err
	}))
	assert.Equal(t, ModeBooting, status.Mode)
}

func TestHeartbeatUnknownCarrier(t *testing.T) {
	m, _, _, _, _ := setup(t)
	_, err := m.Heartbeat(context.Background(), model.CarrierStatus{Carrier: "ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
