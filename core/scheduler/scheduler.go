package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/kilianp07/fleetcore/core/dispatch"
	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/monitoring"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// Config defines the dispatch cadence.
type Config struct {
	// IntervalSeconds is the period of the background dispatch run.
	IntervalSeconds int `json:"interval_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 10
	}
}

// Interval returns the run period.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalSeconds) * time.Second }

// Engine is the dispatch side driven by the scheduler.
type Engine interface {
	MarkChanged(fleet string)
	Run(ctx context.Context, fleets ...string) []dispatch.Result
}

// Scheduler drives an Engine.
type Scheduler struct {
	store    store.Store
	engine   Engine
	bus      eventbus.EventBus
	cfg      Config
	log      logger.Logger
	now      func() time.Time
	onResult func([]dispatch.Result)

	last time.Time // upper bound of the previous due scan
}

// New creates a Scheduler. bus and log may be nil.
func New(st store.Store, engine Engine, bus eventbus.EventBus, cfg Config, log logger.Logger) *Scheduler {
	cfg.SetDefaults()
	return &Scheduler{store: st, engine: engine, bus: bus, cfg: cfg, log: logger.OrNop(log), now: time.Now}
}

// OnResult registers fn to receive the results of every run. It must be
// called before Run.
func (s *Scheduler) OnResult(fn func([]dispatch.Result)) { s.onResult = fn }

// Due returns the fleets holding a pending trip whose scheduled start lies
// in (since, until]. Fleets are sorted by name.
func (s *Scheduler) Due(ctx context.Context, since, until time.Time) ([]string, error) {
	set := map[string]bool{}
	err := s.store.View(ctx, func(tx store.Tx) error {
		for _, f := range tx.Fleets() {
			for _, pt := range tx.PendingTrips(f.Name) {
				tr, err := tx.Trip(pt.TripID)
				if err != nil {
					return err
				}
				raw := tr.Metadata[model.MetaScheduledStart]
				if raw == "" {
					continue
				}
				at, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					s.log.Warnf("trip %d: bad %s %q", tr.ID, model.MetaScheduledStart, raw)
					continue
				}
				if at.After(since) && !at.After(until) {
					set[f.Name] = true
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	fleets := make([]string, 0, len(set))
	for f := range set {
		fleets = append(fleets, f)
	}
	sort.Strings(fleets)
	return fleets, nil
}

// Tick flags the fleets whose scheduled trips became due since the previous
// tick and runs every fleet.
func (s *Scheduler) Tick(ctx context.Context) []dispatch.Result {
	now := s.now()
	due, err := s.Due(ctx, s.last, now)
	if err != nil {
		s.log.Errorf("scan scheduled trips: %v", err)
	}
	s.last = now
	for _, f := range due {
		s.log.Debugf("scheduled trips of %s are due", f)
		s.engine.MarkChanged(f)
	}
	return s.run(ctx)
}

// Redispatch flags fleet and runs it.
func (s *Scheduler) Redispatch(ctx context.Context, fleet string) []dispatch.Result {
	s.engine.MarkChanged(fleet)
	return s.run(ctx, fleet)
}

func (s *Scheduler) run(ctx context.Context, fleets ...string) []dispatch.Result {
	res := s.engine.Run(ctx, fleets...)
	for _, r := range res {
		if err := r.Err(); err != nil {
			s.log.Warnf("dispatch %s: %v", r.Fleet, err)
		}
	}
	if s.onResult != nil {
		s.onResult(res)
	}
	return res
}

// Run ticks every configured interval and reacts to bus signals until ctx
// is done. Bus signals are handled on the same goroutine as ticks.
func (s *Scheduler) Run(ctx context.Context) {
	signals := make(chan string, 16)
	flag := func(fleet string) {
		select {
		case signals <- fleet:
		default:
			// the next tick runs the fleet anyway
			s.engine.MarkChanged(fleet)
		}
	}
	eventbus.On(ctx, s.bus, func(e events.RedispatchNeeded) { flag(e.Fleet) })
	eventbus.On(ctx, s.bus, func(e events.CarrierDisconnected) { flag(e.Fleet) })
	eventbus.On(ctx, s.bus, func(e events.TripEvent) {
		if e.To.Terminal() {
			flag(e.Fleet)
		}
	})

	s.last = s.now()
	t := time.NewTicker(s.cfg.Interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.guard(ctx, func() { s.Tick(ctx) })
		case f := <-signals:
			s.guard(ctx, func() { s.Redispatch(ctx, f) })
		}
	}
}

// guard keeps the loop alive when a run panics.
func (s *Scheduler) guard(ctx context.Context, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			monitoring.CapturePanic(v, monitoring.Tags("module", "scheduler"))
			s.log.Errorf("dispatch run: %v", monitoring.PanicError(v))
		}
	}()
	if ctx.Err() == nil {
		fn()
	}
}
