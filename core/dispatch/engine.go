// Package dispatch matches queued trips to carriers. Each run reads one
// snapshot of a fleet, solves a minimum-cost bipartite matching over route
// ETAs scaled by trip priority and records the result as carrier hints on the
// pending trips. Actual assignment happens later through the task assigner.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/fleetcore/core/dispatch/logging"
	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/routing"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// Result reports one fleet run.
type Result struct {
	Fleet      string
	Skipped    bool
	Trips      int
	Carriers   int
	Pairs      []logging.Pair
	Infeasible int
	Errors     []error
	Duration   time.Duration
}

// Err joins the per-item errors of the run.
func (r Result) Err() error { return errors.Join(r.Errors...) }

// Options carries the optional collaborators of an Engine.
type Options struct {
	Logger  logger.Logger
	Metrics metrics.MetricsSink
	Logs    logging.LogStore
	Bus     eventbus.EventBus
	// Registerer receives the engine's Prometheus collectors. Nil means
	// the default registerer.
	Registerer prometheus.Registerer
}

type fleetState struct {
	run   sync.Mutex
	gen   uint64 // bumped by MarkChanged
	ran   uint64 // gen observed by the last completed run
	fresh bool   // never ran
}

// Engine is the dispatch engine. Runs of the same fleet are serialised;
// distinct fleets run in parallel.
type Engine struct {
	store  store.Store
	oracle routing.Oracle
	cfg    Config
	log    logger.Logger
	sink   metrics.MetricsSink
	logs   logging.LogStore
	bus    eventbus.EventBus
	now    func() time.Time
	prom   *engineMetrics

	mu     sync.Mutex
	fleets map[string]*fleetState
}

// NewEngine creates an Engine. cfg is defaulted and validated.
func NewEngine(st store.Store, oracle routing.Oracle, cfg Config, opts Options) (*Engine, error) {
	if st == nil || oracle == nil {
		return nil, fmt.Errorf("dispatch: nil parameter provided to NewEngine")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	prom, err := newEngineMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("dispatch: metrics: %w", err)
	}
	e := &Engine{
		prom:   prom,
		store:  st,
		oracle: oracle,
		cfg:    cfg,
		log:    logger.OrNop(opts.Logger),
		sink:   opts.Metrics,
		logs:   opts.Logs,
		bus:    opts.Bus,
		now:    time.Now,
		fleets: make(map[string]*fleetState),
	}
	if e.sink == nil {
		e.sink = metrics.NopSink{}
	}
	if e.logs == nil {
		e.logs = logging.NopStore{}
	}
	return e, nil
}

func (e *Engine) state(fleet string) *fleetState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.fleets[fleet]
	if !ok {
		s = &fleetState{fresh: true}
		e.fleets[fleet] = s
	}
	return s
}

// MarkChanged records a booking, cancellation or availability change so the
// next run of fleet is not skipped.
func (e *Engine) MarkChanged(fleet string) {
	s := e.state(fleet)
	e.mu.Lock()
	s.gen++
	e.mu.Unlock()
}

// Trigger marks the fleets changed and runs them.
func (e *Engine) Trigger(ctx context.Context, fleets ...string) []Result {
	for _, f := range fleets {
		e.MarkChanged(f)
	}
	return e.Run(ctx, fleets...)
}

// Run dispatches the fleets in parallel and returns one Result per fleet in
// argument order. With no fleet given every fleet of the store is run.
func (e *Engine) Run(ctx context.Context, fleets ...string) []Result {
	if len(fleets) == 0 {
		_ = e.store.View(ctx, func(tx store.Tx) error {
			for _, f := range tx.Fleets() {
				fleets = append(fleets, f.Name)
			}
			return nil
		})
	}
	res := make([]Result, len(fleets))
	var wg sync.WaitGroup
	for i, f := range fleets {
		wg.Add(1)
		go func(i int, f string) {
			defer wg.Done()
			res[i] = e.runFleet(ctx, f)
		}(i, f)
	}
	wg.Wait()
	return res
}

func (e *Engine) runFleet(ctx context.Context, fleet string) Result {
	s := e.state(fleet)
	s.run.Lock()
	defer s.run.Unlock()

	e.mu.Lock()
	gen, dirty := s.gen, s.fresh || s.gen != s.ran
	e.mu.Unlock()
	res := Result{Fleet: fleet}
	if !dirty {
		res.Skipped = true
		e.prom.observe(res)
		return res
	}

	start := e.now()
	var snap snapshot
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		snap, err = e.snapshot(tx, fleet, start)
		return err
	})
	if err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("dispatch %s: %w", fleet, err))
		e.log.Errorf("dispatch %s: %v", fleet, err)
		return res
	}
	res.Trips, res.Carriers = len(snap.Pickups), len(snap.Sherpas)
	res.Errors = append(res.Errors, snap.Problems...)

	rows := map[int]int{}
	var cost []float64
	if res.Trips > 0 && res.Carriers > 0 {
		raw, errs := e.etaMatrix(ctx, snap)
		res.Errors = append(res.Errors, errs...)
		res.Infeasible = infeasibleCount(raw)
		norm := normalize(raw, scaledPriorities(snap.Pickups, e.cfg.WaitingTimeFactor), e.cfg.EtaPowerFactor, e.cfg.PriorityPowerFactor)
		rows = e.match(norm)
		cost = make([]float64, res.Trips)
		for i, j := range rows {
			cost[i] = norm.At(i, j)
		}
	}

	pairs, errs := e.apply(ctx, snap, rows, cost, start)
	res.Pairs = pairs
	res.Errors = append(res.Errors, errs...)
	res.Duration = e.now().Sub(start)

	e.mu.Lock()
	s.ran, s.fresh = gen, false
	e.mu.Unlock()

	e.report(ctx, snap, res, start)
	return res
}

// apply writes the hints of one cycle. Trips left unmatched lose a stale
// hint and return to BOOKED. A trip or carrier that changed since the
// snapshot is skipped and reported.
func (e *Engine) apply(ctx context.Context, snap snapshot, rows map[int]int, cost []float64, now time.Time) ([]logging.Pair, []error) {
	var (
		pairs []logging.Pair
		errs  []error
	)
	err := e.store.Update(ctx, func(tx store.Tx) error {
		pairs, errs = nil, nil
		for i, p := range snap.Pickups {
			want := ""
			if j, ok := rows[i]; ok {
				want = snap.Sherpas[j].Name
			}
			pair, err := e.applyTrip(tx, p, want)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if pair {
				pairs = append(pairs, logging.Pair{TripID: p.TripID, Carrier: want, Cost: cost[i]})
			}
		}
		if len(pairs) == 0 {
			return nil
		}
		f, err := tx.Fleet(snap.Fleet.Name)
		if err != nil {
			return err
		}
		f.LastAssignment = now.UnixNano()
		return tx.PutFleet(f)
	})
	if err != nil {
		return nil, append(errs, fmt.Errorf("dispatch %s: apply: %w", snap.Fleet.Name, err))
	}
	return pairs, errs
}

// applyTrip sets or clears the hint of one pending trip. It reports whether
// a pair was recorded.
func (e *Engine) applyTrip(tx store.Tx, p pickup, want string) (bool, error) {
	pt, err := tx.PendingTrip(p.TripID)
	if err != nil {
		return false, fmt.Errorf("trip %d left the queue: %w", p.TripID, err)
	}
	tr, err := tx.Trip(p.TripID)
	if err != nil {
		return false, fmt.Errorf("trip %d: %w", p.TripID, err)
	}
	var c model.Carrier
	if want != "" {
		c, err = tx.Carrier(want)
		if err != nil {
			return false, fmt.Errorf("trip %d: %w", p.TripID, err)
		}
		ok := c.Available()
		if e.cfg.IncludeBusyCarriers {
			ok = c.Schedulable()
		}
		if !ok {
			want = ""
			err = fmt.Errorf("trip %d: carrier %s no longer available", p.TripID, c.Name)
		}
	}
	status := model.TripBooked
	if want != "" {
		status = model.TripAssigned
	}
	if pt.Carrier != want || tr.Status != status {
		pt.Carrier = want
		if perr := tx.PutPendingTrip(pt); perr != nil {
			return false, perr
		}
		tr.Status = status
		if perr := tx.PutTrip(tr); perr != nil {
			return false, perr
		}
	}
	if want == "" {
		return false, err
	}
	if !c.AssignNextTask {
		c.AssignNextTask = true
		if err := tx.PutCarrier(c); err != nil {
			return false, err
		}
	}
	return true, nil
}

// report records the cycle in the decision log, the metrics sink, the
// prometheus collectors and the event bus.
func (e *Engine) report(ctx context.Context, snap snapshot, res Result, at time.Time) {
	fleet := snap.Fleet.Name
	rec := logging.LogRecord{
		Timestamp:  at,
		Fleet:      fleet,
		Pairs:      res.Pairs,
		Infeasible: res.Infeasible,
		DurationMS: float64(res.Duration) / float64(time.Millisecond),
	}
	for _, p := range snap.Pickups {
		rec.Trips = append(rec.Trips, p.TripID)
	}
	for _, s := range snap.Sherpas {
		rec.Carriers = append(rec.Carriers, s.Name)
	}
	if len(res.Errors) > 0 {
		rec.Errors = make(map[string]string, len(res.Errors))
		for i, err := range res.Errors {
			rec.Errors[strconv.Itoa(i)] = err.Error()
		}
	}
	if err := e.logs.Append(ctx, rec); err != nil {
		e.log.Errorf("dispatch log: %v", err)
	}
	if err := e.sink.RecordDispatchCycle(metrics.DispatchCycle{
		Fleet:       fleet,
		Trips:       res.Trips,
		Carriers:    res.Carriers,
		Assignments: len(res.Pairs),
		Infeasible:  res.Infeasible,
		Errors:      len(res.Errors),
		Duration:    res.Duration,
		Time:        at,
	}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	e.prom.observe(res)
	if e.bus != nil {
		for _, p := range res.Pairs {
			e.bus.Publish(events.AssignmentEvent{Fleet: fleet, TripID: p.TripID, Carrier: p.Carrier, Cost: p.Cost})
		}
	}
	for _, err := range res.Errors {
		e.log.Warnf("dispatch %s: %v", fleet, err)
	}
	e.log.Infof("dispatch %s: %d trips, %d carriers, %d pairs", fleet, res.Trips, res.Carriers, len(res.Pairs))
}
