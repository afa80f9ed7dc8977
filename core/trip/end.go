package trip

import (
	"context"
	"fmt"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
)

// End moves the trip to SUCCEEDED or FAILED and releases its carrier.
func (l *Lifecycle) End(ctx context.Context, tripID int64, success bool, reason string) (model.Trip, error) {
	status := model.TripFailed
	if success {
		status = model.TripSucceeded
	}
	var (
		tr   model.Trip
		prev model.TripStatus
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		tr, prev, err = l.finishTx(tx, tripID, status)
		return err
	})
	if err != nil {
		return model.Trip{}, fmt.Errorf("end trip %d: %w", tripID, err)
	}
	l.ended(ctx, tr, prev, reason)
	return tr, nil
}

// ForceEnd fails a trip held by a carrier and tells the carrier to stop.
func (l *Lifecycle) ForceEnd(ctx context.Context, tripID int64, reason string) (model.Trip, error) {
	var (
		tr   model.Trip
		prev model.TripStatus
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.OngoingTrip(tripID); err != nil {
			return fmt.Errorf("trip %d has no carrier: %w", tripID, err)
		}
		var err error
		tr, prev, err = l.finishTx(tx, tripID, model.TripFailed)
		return err
	})
	if err != nil {
		return model.Trip{}, fmt.Errorf("force end trip %d: %w", tripID, err)
	}
	l.ended(ctx, tr, prev, reason)
	if l.cmds != nil {
		if _, err := l.cmds.Terminate(ctx, tr.Carrier, commands.Terminate{TripID: tr.ID, Reason: reason}); err != nil {
			l.log.Errorf("terminate %s: %v", tr.Carrier, err)
		}
	}
	return tr, nil
}

func (l *Lifecycle) ended(ctx context.Context, tr model.Trip, prev model.TripStatus, reason string) {
	l.emit(tr, prev, reason)
	request.Touch(ctx, tr.Fleet)
	level := notify.LevelInfo
	if tr.Status != model.TripSucceeded {
		level = notify.LevelAlert
	}
	msg := fmt.Sprintf("trip %d %s", tr.ID, tr.Status)
	if reason != "" {
		msg += ": " + reason
	}
	notify.Send(ctx, l.notify, module, level, msg, tr.Carrier, tr.BookingID)
}

// finishTx applies a terminal status. The pending or ongoing record is
// removed, an open leg is closed and the carrier is freed.
func (l *Lifecycle) finishTx(tx store.Tx, id int64, status model.TripStatus) (model.Trip, model.TripStatus, error) {
	tr, err := tx.Trip(id)
	if err != nil {
		return tr, "", err
	}
	prev := tr.Status
	if prev.Terminal() {
		return tr, prev, fmt.Errorf("trip %d is %s: %w", id, prev, ErrTerminal)
	}
	now := l.now()
	if _, err := tx.PendingTrip(id); err == nil {
		if err := tx.DeletePendingTrip(id); err != nil {
			return tr, prev, err
		}
	}
	if ot, err := tx.OngoingTrip(id); err == nil {
		if ot.LegID != 0 {
			if leg, err := tx.TripLeg(ot.LegID); err == nil && !leg.Finished() {
				leg.EndedAt = now
				leg.Status = model.LegStopped
				if err := tx.PutTripLeg(leg); err != nil {
					return tr, prev, err
				}
			}
		}
		if err := tx.DeleteOngoingTrip(id); err != nil {
			return tr, prev, err
		}
		if c, err := tx.Carrier(ot.Carrier); err == nil && c.TripID == id {
			c.TripID = 0
			c.Destination = ""
			c.AssignNextTask = true
			if err := tx.PutCarrier(c); err != nil {
				return tr, prev, err
			}
		}
	}
	tr.Status = status
	tr.EndedAt = now
	if status == model.TripSucceeded {
		tr.Progress = 100
	}
	return tr, prev, tx.PutTrip(tr)
}
