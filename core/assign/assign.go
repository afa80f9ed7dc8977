// Package assign decides and executes the next action of a carrier.
package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
)

// Decision is the action selected for a carrier.
type Decision string

const (
	NoTask         Decision = "no_task"
	AssignNewTrip  Decision = "assign_new_trip"
	EndOngoingTrip Decision = "end_ongoing_trip"
	ContinueLeg    Decision = "continue_leg"
	StartLeg       Decision = "start_leg"
)

// Task is a decision with its subject.
type Task struct {
	Carrier  string
	Decision Decision
	TripID   int64
	From     string
	To       string
	Reason   string
}

func noTask(carrier, format string, args ...any) Task {
	return Task{Carrier: carrier, Decision: NoTask, Reason: fmt.Sprintf(format, args...)}
}

// Decide evaluates the decision procedure for carrier against tx.
func Decide(tx store.Tx, carrier string) (Task, error) {
	c, err := tx.Carrier(carrier)
	if err != nil {
		return Task{}, err
	}
	if c.Disabled {
		return noTask(carrier, "disabled (%s)", c.DisableReason), nil
	}
	ot, err := tx.OngoingTripByCarrier(carrier)
	if errors.Is(err, store.ErrNotFound) {
		return decideIdle(tx, c)
	}
	if err != nil {
		return Task{}, err
	}
	tr, err := tx.Trip(ot.TripID)
	if err != nil {
		return Task{}, err
	}
	if ot.NextIdx >= len(tr.AugmentedRoute) {
		return Task{Carrier: carrier, Decision: EndOngoingTrip, TripID: tr.ID}, nil
	}
	if !ot.Waits.Empty() {
		return noTask(carrier, "waiting on %s", ot.Waits), nil
	}
	var leg model.TripLeg
	if ot.LegID != 0 {
		if leg, err = tx.TripLeg(ot.LegID); err != nil {
			return Task{}, err
		}
	}
	if ot.LegID != 0 && !leg.Finished() {
		if !ot.ContinueRequested {
			return noTask(carrier, "leg %d in progress", leg.ID), nil
		}
		if c.Destination != leg.To {
			return noTask(carrier, "carrier heads to %q, leg goes to %s", c.Destination, leg.To), nil
		}
		return Task{Carrier: carrier, Decision: ContinueLeg, TripID: tr.ID, From: leg.From, To: leg.To}, nil
	}
	if c.Station == "" && ot.NextIdx > 0 {
		return noTask(carrier, "carrier is not at a station"), nil
	}
	return Task{Carrier: carrier, Decision: StartLeg, TripID: tr.ID, From: c.Station, To: tr.AugmentedRoute[ot.NextIdx]}, nil
}

// decideIdle looks for the pending trip dispatch hinted to c.
func decideIdle(tx store.Tx, c model.Carrier) (Task, error) {
	if !c.Available() {
		return noTask(c.Name, "not available"), nil
	}
	fleet, err := tx.Fleet(c.Fleet)
	if err != nil {
		return Task{}, err
	}
	for _, pt := range tx.PendingTrips(c.Fleet) {
		if pt.Carrier != c.Name {
			continue
		}
		if fleet.Status == model.FleetStopped {
			tr, err := tx.Trip(pt.TripID)
			if err != nil {
				return Task{}, err
			}
			if !tr.ParkingFor(c.Name) {
				continue
			}
		}
		return Task{Carrier: c.Name, Decision: AssignNewTrip, TripID: pt.TripID}, nil
	}
	return noTask(c.Name, "no trip for carrier"), nil
}

// Lifecycle is the trip side used to execute decisions.
type Lifecycle interface {
	Assign(ctx context.Context, tripID int64, carrier string) (model.OngoingTrip, error)
	StartLeg(ctx context.Context, carrier string) (model.TripLeg, error)
	ContinueLeg(ctx context.Context, carrier string) (model.TripLeg, error)
	End(ctx context.Context, tripID int64, success bool, reason string) (model.Trip, error)
}

// Assigner runs the decision procedure and executes its outcome.
type Assigner struct {
	store    store.Store
	lc       Lifecycle
	log      logger.Logger
	maxSteps int
}

// New creates an Assigner.
func New(st store.Store, lc Lifecycle, log logger.Logger) *Assigner {
	return &Assigner{store: st, lc: lc, log: logger.OrNop(log), maxSteps: 4}
}

// Run decides and executes tasks for carrier until it has nothing to do or
// a movement was issued. The trigger flag is cleared when nothing is left.
func (a *Assigner) Run(ctx context.Context, carrier string) ([]Task, error) {
	var done []Task
	for step := 0; step < a.maxSteps; step++ {
		var t Task
		err := a.store.Update(ctx, func(tx store.Tx) error {
			var err error
			if t, err = Decide(tx, carrier); err != nil {
				return err
			}
			if t.Decision != NoTask {
				return nil
			}
			c, err := tx.Carrier(carrier)
			if err != nil || !c.AssignNextTask {
				return err
			}
			c.AssignNextTask = false
			return tx.PutCarrier(c)
		})
		if err != nil {
			return done, fmt.Errorf("decide for %s: %w", carrier, err)
		}
		if t.Decision == NoTask {
			a.log.Debugf("%s: no task, %s", carrier, t.Reason)
			return done, nil
		}
		a.log.Infof("%s: %s trip %d %s->%s", carrier, t.Decision, t.TripID, t.From, t.To)
		done = append(done, t)
		if err := a.execute(ctx, t); err != nil {
			return done, err
		}
		if t.Decision == StartLeg || t.Decision == ContinueLeg {
			return done, nil
		}
	}
	return done, nil
}

func (a *Assigner) execute(ctx context.Context, t Task) error {
	var err error
	switch t.Decision {
	case AssignNewTrip:
		_, err = a.lc.Assign(ctx, t.TripID, t.Carrier)
	case EndOngoingTrip:
		_, err = a.lc.End(ctx, t.TripID, true, "")
	case StartLeg:
		_, err = a.lc.StartLeg(ctx, t.Carrier)
	case ContinueLeg:
		_, err = a.lc.ContinueLeg(ctx, t.Carrier)
	}
	if err != nil {
		return fmt.Errorf("%s for %s: %w", t.Decision, t.Carrier, err)
	}
	return nil
}

// RunFlagged runs every carrier carrying the trigger flag. One carrier's
// failure does not stop the others.
func (a *Assigner) RunFlagged(ctx context.Context) error {
	var names []string
	err := a.store.View(ctx, func(tx store.Tx) error {
		for _, c := range tx.Carriers("") {
			if c.AssignNextTask {
				names = append(names, c.Name)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, n := range names {
		if _, err := a.Run(ctx, n); err != nil {
			a.log.Warnf("assign next task: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Loop calls RunFlagged every interval until ctx is done.
func (a *Assigner) Loop(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = a.RunFlagged(ctx)
		}
	}
}
