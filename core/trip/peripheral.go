package trip

import (
	"context"
	"fmt"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
)

// HandlePeripheral applies a peripheral acknowledgement to the carrier's
// ongoing trip. A start phase clears the start wait and arms the end wait;
// an end phase clears the end wait. Anything not armed is rejected and the
// trip is left untouched.
func (l *Lifecycle) HandlePeripheral(ctx context.Context, carrier string, device model.Device, phase model.Phase) (model.OngoingTrip, error) {
	start, end, ok := device.Waits()
	if !ok {
		return model.OngoingTrip{}, fmt.Errorf("unknown device %q: %w", device, ErrUnsolicitedPeripheral)
	}
	var ot model.OngoingTrip
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if ot, err = tx.OngoingTripByCarrier(carrier); err != nil {
			return fmt.Errorf("carrier %s has no trip: %w", carrier, ErrUnsolicitedPeripheral)
		}
		switch phase {
		case model.PhaseStart:
			if !ot.Waits.Has(start) {
				return fmt.Errorf("%s %s while waiting on %s: %w", device, phase, ot.Waits, ErrUnsolicitedPeripheral)
			}
			ot.Waits = ot.Waits.Clear(start).Arm(end)
		case model.PhaseEnd:
			if !ot.Waits.Has(end) {
				return fmt.Errorf("%s %s while waiting on %s: %w", device, phase, ot.Waits, ErrUnsolicitedPeripheral)
			}
			ot.Waits = ot.Waits.Clear(end)
		default:
			return fmt.Errorf("phase %q: %w", phase, ErrUnsolicitedPeripheral)
		}
		if err := tx.PutOngoingTrip(ot); err != nil {
			return err
		}
		if !ot.Waits.Empty() {
			return nil
		}
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		c.AssignNextTask = true
		return tx.PutCarrier(c)
	})
	if err != nil {
		l.log.Warnf("peripheral %s %s from %s rejected: %v", device, phase, carrier, err)
		return model.OngoingTrip{}, err
	}
	l.log.Debugf("peripheral %s %s from %s, waiting on %s", device, phase, carrier, ot.Waits)
	return ot, nil
}
