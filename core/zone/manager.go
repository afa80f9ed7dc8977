package zone

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// Config holds the distances of the position driven visa protocol, in
// metres.
type Config struct {
	LookaheadDistance float64 `json:"lookahead_distance"`
	ReleaseDistance   float64 `json:"release_distance"`
}

// SetDefaults fills unset distances.
func (c *Config) SetDefaults() {
	if c.LookaheadDistance <= 0 {
		c.LookaheadDistance = 5
	}
	if c.ReleaseDistance <= 0 {
		c.ReleaseDistance = 2
	}
}

// Responder answers carriers.
type Responder interface {
	Visa(ctx context.Context, carrier string, v commands.VisaResponse) (string, error)
}

// Manager grants and revokes visas.
type Manager struct {
	store   store.Store
	cfg     Config
	resp    Responder
	bus     eventbus.EventBus
	metrics metrics.MetricsSink
	log     logger.Logger
	now     func() time.Time
}

// NewManager creates a Manager. resp, bus and sink may be nil.
func NewManager(st store.Store, cfg Config, resp Responder, bus eventbus.EventBus, sink metrics.MetricsSink, log logger.Logger) *Manager {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Manager{store: st, cfg: cfg, resp: resp, bus: bus, metrics: sink, log: logger.OrNop(log), now: time.Now}
}

// Request locks zone for carrier and answers it. A denial is not an error:
// the carrier asks again on its next position update.
func (m *Manager) Request(ctx context.Context, carrier, zoneID string, exclusive bool) (Decision, error) {
	var d Decision
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		d, err = LockTx(tx, zoneID, carrier, exclusive, m.now())
		return err
	})
	if err != nil {
		return Decision{}, fmt.Errorf("request zone %s for %s: %w", zoneID, carrier, err)
	}
	result := "granted"
	if !d.Granted {
		result = "denied"
		m.log.Infof("visa denied to %s: %s", carrier, d.Reason)
	} else {
		m.log.Debugf("visa %v granted to %s", d.Zones, carrier)
	}
	m.report(carrier, d.Zones, result, d.Reason)
	m.respond(ctx, carrier, commands.VisaResponse{Zones: d.Zones, Granted: d.Granted, Reason: d.Reason})
	return d, nil
}

// Release unlocks zone and its linked gates for carrier.
func (m *Manager) Release(ctx context.Context, carrier, zoneID string) ([]string, error) {
	var released []string
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		released, err = UnlockTx(tx, zoneID, carrier)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("release zone %s for %s: %w", zoneID, carrier, err)
	}
	m.report(carrier, released, "released", "")
	m.respond(ctx, carrier, commands.VisaResponse{Zones: released, Granted: true, Release: true})
	return released, nil
}

// ReleaseAll drops every visa held by carrier.
func (m *Manager) ReleaseAll(ctx context.Context, carrier string) ([]string, error) {
	var released []string
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		released, err = ReleaseAllTx(tx, carrier)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("release all zones of %s: %w", carrier, err)
	}
	if len(released) > 0 {
		m.report(carrier, released, "released", "")
	}
	return released, nil
}

// Prime takes the zone covering the station the carrier stands at, if any.
func (m *Manager) Prime(ctx context.Context, carrier string) (Decision, error) {
	var (
		zoneID    string
		exclusive bool
	)
	err := m.store.View(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		for _, z := range tx.Zones() {
			if z.Covers(c.Station) {
				zoneID, exclusive = z.ID, z.ExclusiveAccess
				return nil
			}
		}
		return nil
	})
	if err != nil || zoneID == "" {
		return Decision{}, err
	}
	return m.Request(ctx, carrier, zoneID, exclusive)
}

// Movement is the outcome of a position update.
type Movement struct {
	Requested []Decision
	Released  []string
}

// OnPosition runs the position driven protocol: zones ahead of the carrier
// within the lookahead distance are requested, held zones left behind past
// the release distance are released. dest is the pose of the carrier's open
// leg destination, or nil when idle.
func (m *Manager) OnPosition(ctx context.Context, carrier string, pose model.Pose, dest *model.Pose) (Movement, error) {
	type want struct {
		id        string
		exclusive bool
	}
	var (
		wants    []want
		releases []string
	)
	err := m.store.View(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		for _, z := range tx.Zones() {
			anchor, ok := m.anchor(tx, z, c)
			if !ok {
				continue
			}
			d := pose.Distance(anchor)
			switch {
			case z.HeldBy(carrier):
				if d > m.cfg.ReleaseDistance && !z.Covers(c.Station) && !z.Covers(c.Destination) && !ahead(pose, anchor, dest) {
					releases = append(releases, z.ID)
				}
			case dest != nil && d <= m.cfg.LookaheadDistance && (ahead(pose, anchor, dest) || z.Covers(c.Destination)):
				wants = append(wants, want{z.ID, z.ExclusiveAccess})
			}
		}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	var mv Movement
	for _, id := range releases {
		ids, err := m.Release(ctx, carrier, id)
		if err != nil {
			// already dropped with a linked gate released earlier in the loop
			m.log.Debugf("release %s for %s: %v", id, carrier, err)
			continue
		}
		mv.Released = append(mv.Released, ids...)
	}
	for _, w := range wants {
		d, err := m.Request(ctx, carrier, w.id, w.exclusive)
		if err != nil {
			return mv, err
		}
		mv.Requested = append(mv.Requested, d)
	}
	return mv, nil
}

// anchor is the point used to measure the distance between a carrier and a
// zone: the covered station pose for station zones, the zone pose otherwise.
func (m *Manager) anchor(tx store.Tx, z model.ExclusionZone, c model.Carrier) (model.Pose, bool) {
	if z.Kind == model.ZoneStation && len(z.Stations) > 0 {
		name := z.Stations[0]
		for _, s := range z.Stations {
			if s == c.Destination || s == c.Station {
				name = s
				break
			}
		}
		st, err := tx.Station(name)
		if err != nil {
			return model.Pose{}, false
		}
		return st.Pose, true
	}
	return z.Pose, true
}

// ahead reports whether p lies between pose and dest along the straight
// line, within the lane tolerance.
func ahead(pose, p model.Pose, dest *model.Pose) bool {
	if dest == nil {
		return false
	}
	dx, dy := dest.X-pose.X, dest.Y-pose.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return p.Near(pose)
	}
	t := ((p.X-pose.X)*dx + (p.Y-pose.Y)*dy) / l2
	if t < 0 || t > 1 {
		return false
	}
	proj := model.Pose{X: pose.X + t*dx, Y: pose.Y + t*dy}
	return proj.Distance(p) <= laneWidth
}

const laneWidth = 1.0

func (m *Manager) report(carrier string, zones []string, result, reason string) {
	if m.bus != nil {
		m.bus.Publish(events.VisaEvent{Carrier: carrier, Zones: zones, Result: result, Reason: reason})
	}
	for _, z := range zones {
		if err := metrics.RecordVisa(m.metrics, metrics.VisaEvent{Carrier: carrier, Zone: z, Result: result, Time: m.now()}); err != nil {
			m.log.Warnf("visa metrics: %v", err)
		}
	}
}

func (m *Manager) respond(ctx context.Context, carrier string, v commands.VisaResponse) {
	if m.resp == nil {
		return
	}
	if _, err := m.resp.Visa(ctx, carrier, v); err != nil {
		m.log.Errorf("visa response to %s: %v", carrier, err)
	}
}
