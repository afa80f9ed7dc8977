// Package trip owns the trip state machine: booking, assignment, legs,
// station side peripheral waits and termination.
//
// Every transition runs inside a single store transaction. Route lookups and
// outbound commands happen outside of it; lookups are re-validated before the
// write.
package trip

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/routing"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

var (
	// ErrUnsolicitedPeripheral rejects a peripheral event with no matching
	// armed wait-state.
	ErrUnsolicitedPeripheral = errors.New("unsolicited peripheral event")
	// ErrStaleEvent rejects a carrier report that does not match the open leg.
	ErrStaleEvent = errors.New("event does not match the open leg")
	// ErrConflict is returned when state changed between the read and the
	// write of a transition.
	ErrConflict = errors.New("state changed concurrently")
	// ErrLegOpen is returned when a leg is started while another is open.
	ErrLegOpen = errors.New("a leg is already open")
	// ErrRouteExhausted is returned when no hop is left to start.
	ErrRouteExhausted = errors.New("route exhausted")
	// ErrTerminal is returned for transitions on ended trips.
	ErrTerminal = errors.New("trip already ended")
	// ErrNotPending is returned when cancelling a trip that is not queued.
	ErrNotPending = errors.New("trip is not pending")
)

const module = "trip"

// Commands is the outbound side used by the lifecycle.
type Commands interface {
	Move(ctx context.Context, carrier string, m commands.Move) (string, error)
	Terminate(ctx context.Context, carrier string, t commands.Terminate) (string, error)
	Peripheral(ctx context.Context, carrier string, p commands.Peripheral) (string, error)
}

// Hook runs inside the transaction that opens a leg. Returning an error
// aborts the leg.
type Hook func(ctx context.Context, tx store.Tx, t model.Trip, leg model.TripLeg) error

// Options carries the optional collaborators of a Lifecycle.
type Options struct {
	Notify  notify.Sink
	Bus     eventbus.EventBus
	Metrics metrics.MetricsSink
	Logger  logger.Logger
	PreLeg  []Hook
}

// Lifecycle implements the trip state machine.
type Lifecycle struct {
	store   store.Store
	oracle  routing.Oracle
	cmds    Commands
	notify  notify.Sink
	bus     eventbus.EventBus
	metrics metrics.MetricsSink
	log     logger.Logger
	preLeg  []Hook
	now     func() time.Time
}

// New creates a Lifecycle.
func New(st store.Store, oracle routing.Oracle, cmds Commands, opts Options) *Lifecycle {
	l := &Lifecycle{
		store:   st,
		oracle:  oracle,
		cmds:    cmds,
		notify:  opts.Notify,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		log:     logger.OrNop(opts.Logger),
		preLeg:  opts.PreLeg,
		now:     time.Now,
	}
	if l.notify == nil {
		l.notify = notify.NopSink{}
	}
	if l.metrics == nil {
		l.metrics = metrics.NopSink{}
	}
	return l
}

// emit reports a committed status transition.
func (l *Lifecycle) emit(tr model.Trip, prev model.TripStatus, reason string) {
	if prev == tr.Status {
		return
	}
	l.report(tr, prev, reason)
}

// report publishes tr's status on the bus and the metrics sink.
func (l *Lifecycle) report(tr model.Trip, prev model.TripStatus, reason string) {
	if l.bus != nil {
		l.bus.Publish(events.TripEvent{TripID: tr.ID, Fleet: tr.Fleet, Carrier: tr.Carrier, From: prev, To: tr.Status, Reason: reason})
	}
	if err := metrics.RecordTrip(l.metrics, metrics.TripEvent{
		TripID:   tr.ID,
		Fleet:    tr.Fleet,
		Carrier:  tr.Carrier,
		Status:   tr.Status,
		Progress: tr.Progress,
		Time:     l.now(),
	}); err != nil {
		l.log.Warnf("trip metrics: %v", err)
	}
	l.log.Infof("trip %d %s -> %s %s", tr.ID, prev, tr.Status, reason)
}
