package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/core/trip"
	"github.com/kilianp07/fleetcore/infra/mqtt"
)

const site = `fleets:
  - name: f
stations:
  - {name: A, fleet: f, pose: {x: 0, y: 0}, properties: [dispatch_not_required]}
  - {name: B, fleet: f, pose: {x: 10, y: 0}, properties: [dispatch_not_required]}
carriers:
  - {name: c1, fleet: f, inducted: true, station: A, pose: {x: 0, y: 0}}
edges:
  f:
    - {from: A, to: B}
`

func newService(t *testing.T) (*Service, *mqtt.MockPublisher) {
	t.Helper()
	dir := t.TempDir()
	sitePath := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(sitePath, []byte(site), 0o644))
	cfg := &config.Config{SiteFile: sitePath}
	cfg.Logging.Backend = "nop"
	cfg.Scheduler.IntervalSeconds = 1
	cfg.Health.CheckIntervalSeconds = 1
	cfg.Health.HeartbeatTimeoutSeconds = 60
	pub := mqtt.NewMockPublisher()
	svc, err := NewWithTransport(cfg, pub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, pub
}

func TestNewSeedsSite(t *testing.T) {
	svc, _ := newService(t)
	require.NoError(t, svc.Store.View(context.Background(), func(tx store.Tx) error {
		c, err := tx.Carrier("c1")
		require.NoError(t, err)
		assert.Equal(t, "A", c.Station)
		assert.Len(t, tx.Stations("f"), 2)
		return nil
	}))
	assert.True(t, svc.Router.Handles(router.KindCommandAck))
	assert.True(t, svc.Router.Handles(router.KindTriggerOptimalDispatch))
}

func TestServiceBooksAndMovesCarrier(t *testing.T) {
	svc, pub := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	submit := func(m router.Message) {
		require.Eventually(t, func() bool { return svc.Router.Submit(ctx, m) == nil }, 2*time.Second, 10*time.Millisecond)
	}
	submit(router.Message{Kind: router.KindCarrierStatus, Source: "c1", Carrier: "c1",
		Payload: model.CarrierStatus{Carrier: "c1", Mode: "fleet"}})
	submit(router.Message{Kind: router.KindBook, Source: "wms", Payload: trip.Booking{BookingID: "b-1", Route: []string{"A", "B"}}})

	var move commands.Command
	require.Eventually(t, func() bool {
		for _, cmd := range pub.Sent("c1") {
			if cmd.Kind == commands.KindMove {
				move = cmd
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "B", move.Payload.(commands.Move).Destination)
	before := svc.Commander.Pending()
	require.GreaterOrEqual(t, before, 1)

	submit(router.Message{Kind: router.KindCommandAck, Source: "c1", Carrier: "c1", Payload: router.CommandAck{CommandID: move.ID}})
	require.Eventually(t, func() bool { return svc.Commander.Pending() < before }, 2*time.Second, 10*time.Millisecond)
}

func TestNewRejectsBrokenSite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("carriers:\n  - {name: c1, fleet: nowhere}\n"), 0o644))
	cfg := &config.Config{SiteFile: path}
	cfg.Logging.Backend = "nop"
	_, err := NewWithTransport(cfg, mqtt.NewMockPublisher())
	assert.ErrorContains(t, err, `unknown fleet "nowhere"`)
}
