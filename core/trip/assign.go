package trip

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/routing"
	"github.com/kilianp07/fleetcore/core/store"
)

// Assign hands the pending trip to carrier. ETAs for every hop of the
// augmented route are computed first; an unreachable hop fails the trip and
// no ongoing trip is created.
func (l *Lifecycle) Assign(ctx context.Context, tripID int64, carrier string) (model.OngoingTrip, error) {
	var (
		tr    model.Trip
		c     model.Carrier
		aug   []string
		poses []model.Pose
		first model.Station
	)
	err := l.store.View(ctx, func(tx store.Tx) error {
		var err error
		if tr, err = tx.Trip(tripID); err != nil {
			return err
		}
		if _, err = tx.PendingTrip(tripID); err != nil {
			return fmt.Errorf("trip %d: %w", tripID, ErrNotPending)
		}
		if c, err = tx.Carrier(carrier); err != nil {
			return err
		}
		aug = augment(tr, c)
		poses = make([]model.Pose, len(aug))
		for i, name := range aug {
			st, err := tx.Station(name)
			if err != nil {
				return err
			}
			poses[i] = st.Pose
			if i == 0 {
				first = st
			}
		}
		return nil
	})
	if err != nil {
		return model.OngoingTrip{}, fmt.Errorf("assign trip %d: %w", tripID, err)
	}

	etas, start, err := l.etas(ctx, tr.Fleet, c, aug, poses)
	if errors.Is(err, routing.ErrUnreachable) {
		if _, ferr := l.failPending(ctx, tripID, err.Error()); ferr != nil {
			l.log.Errorf("fail unreachable trip %d: %v", tripID, ferr)
		}
		return model.OngoingTrip{}, fmt.Errorf("assign trip %d to %s: %w", tripID, carrier, err)
	}
	if err != nil {
		return model.OngoingTrip{}, fmt.Errorf("assign trip %d to %s: %w", tripID, carrier, err)
	}

	var (
		ot   model.OngoingTrip
		prev model.TripStatus
		reqs []commands.Peripheral
	)
	err = l.store.Update(ctx, func(tx store.Tx) error {
		cur, err := tx.Trip(tripID)
		if err != nil {
			return err
		}
		pt, err := tx.PendingTrip(tripID)
		if err != nil {
			return fmt.Errorf("trip %d no longer pending: %w", tripID, ErrConflict)
		}
		if pt.Carrier != "" && pt.Carrier != carrier {
			return fmt.Errorf("trip %d is hinted to %s: %w", tripID, pt.Carrier, ErrConflict)
		}
		cc, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		if !cc.Available() {
			return fmt.Errorf("carrier %s is no longer available: %w", carrier, ErrConflict)
		}
		if atStart(cc, aug[0], poses[0]) != (start > 0) {
			return fmt.Errorf("carrier %s moved since routing: %w", carrier, ErrConflict)
		}
		ot = model.OngoingTrip{TripID: tripID, Carrier: carrier, NextIdx: start}
		if start > 0 {
			// the pickup stop is served where the carrier stands
			ot.Waits, reqs = postActions(first, cur, 0)
		}
		if err := tx.PutOngoingTrip(ot); err != nil {
			return err
		}
		if err := tx.DeletePendingTrip(tripID); err != nil {
			return err
		}
		prev = cur.Status
		cur.Status = model.TripAssigned
		cur.Carrier = carrier
		cur.AugmentedRoute = aug
		cur.ETAs = etas
		cur.StartedAt = l.now()
		cur.Progress = progress(etas, start)
		if err := tx.PutTrip(cur); err != nil {
			return err
		}
		tr = cur
		cc.TripID = tripID
		cc.AssignNextTask = true
		return tx.PutCarrier(cc)
	})
	if err != nil {
		return model.OngoingTrip{}, fmt.Errorf("assign trip %d to %s: %w", tripID, carrier, err)
	}
	// dispatch already marks hinted trips ASSIGNED, the pickup is still reported
	l.report(tr, prev, "assigned to "+carrier)
	l.request(ctx, carrier, first.Name, ot.Waits, reqs)
	return ot, nil
}

// etas returns one ETA per augmented hop and the index of the first hop to
// drive. A carrier already standing at the first station skips it.
func (l *Lifecycle) etas(ctx context.Context, fleet string, c model.Carrier, aug []string, poses []model.Pose) ([]float64, int, error) {
	etas := make([]float64, len(aug))
	start := 0
	if atStart(c, aug[0], poses[0]) {
		start = 1
	} else {
		r, err := l.oracle.Route(ctx, fleet, c.Pose, poses[0])
		if err != nil {
			return nil, 0, fmt.Errorf("%s -> %s: %w", c.Name, aug[0], err)
		}
		etas[0] = r.ETA
	}
	for i := 1; i < len(aug); i++ {
		r, err := l.oracle.Route(ctx, fleet, poses[i-1], poses[i])
		if err != nil {
			return nil, 0, fmt.Errorf("%s -> %s: %w", aug[i-1], aug[i], err)
		}
		etas[i] = r.ETA
	}
	return etas, start, nil
}

func (l *Lifecycle) failPending(ctx context.Context, tripID int64, reason string) (model.Trip, error) {
	var (
		tr   model.Trip
		prev model.TripStatus
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		tr, prev, err = l.finishTx(tx, tripID, model.TripFailed)
		return err
	})
	if err != nil {
		return tr, err
	}
	l.emit(tr, prev, reason)
	request.Touch(ctx, tr.Fleet)
	notify.Send(ctx, l.notify, module, notify.LevelAlert, fmt.Sprintf("trip %d failed: %s", tr.ID, reason), tr.BookingID)
	return tr, nil
}

// augment returns the booked route plus the stations inserted for carrier.
func augment(tr model.Trip, c model.Carrier) []string {
	aug := slices.Clone(tr.Route)
	if tr.Metadata[model.MetaParkAfter] == "true" && c.ParkingStation != "" && aug[len(aug)-1] != c.ParkingStation {
		aug = append(aug, c.ParkingStation)
	}
	return aug
}

func atStart(c model.Carrier, station string, pose model.Pose) bool {
	if c.Station != "" {
		return c.Station == station
	}
	return c.Pose.Near(pose)
}

// progress is the share of the total ETA already driven, in percent.
func progress(etas []float64, cursor int) float64 {
	if len(etas) == 0 {
		return 0
	}
	var done, total float64
	for i, e := range etas {
		total += e
		if i < cursor {
			done += e
		}
	}
	if total <= 0 {
		return 100 * float64(cursor) / float64(len(etas))
	}
	return done / total * 100
}
