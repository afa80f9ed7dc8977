package trip

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/store"
)

// StartLeg opens the next hop of the carrier's ongoing trip and sends the
// move command.
func (l *Lifecycle) StartLeg(ctx context.Context, carrier string) (model.TripLeg, error) {
	var (
		leg  model.TripLeg
		tr   model.Trip
		prev model.TripStatus
		dest model.Station
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		ot, err := tx.OngoingTripByCarrier(carrier)
		if err != nil {
			return fmt.Errorf("carrier %s has no trip: %w", carrier, err)
		}
		if tr, err = tx.Trip(ot.TripID); err != nil {
			return err
		}
		if ot.NextIdx >= len(tr.AugmentedRoute) {
			return fmt.Errorf("trip %d: %w", tr.ID, ErrRouteExhausted)
		}
		if ot.LegID != 0 {
			if open, err := tx.TripLeg(ot.LegID); err == nil && !open.Finished() {
				return fmt.Errorf("trip %d leg %d: %w", tr.ID, open.ID, ErrLegOpen)
			}
		}
		to := tr.AugmentedRoute[ot.NextIdx]
		if dest, err = tx.Station(to); err != nil {
			return err
		}
		from := c.Station
		if from == "" && ot.NextIdx > 0 {
			from = tr.AugmentedRoute[ot.NextIdx-1]
		}
		leg = model.TripLeg{
			ID:        tx.NextTripLegID(),
			TripID:    tr.ID,
			From:      from,
			To:        to,
			StartedAt: l.now(),
			Status:    model.LegMoving,
		}
		if ot.NextIdx < len(tr.ETAs) {
			leg.ETA = tr.ETAs[ot.NextIdx]
		}
		for _, h := range l.preLeg {
			if err := h(ctx, tx, tr, leg); err != nil {
				return fmt.Errorf("pre-action: %w", err)
			}
		}
		if err := tx.PutTripLeg(leg); err != nil {
			return err
		}
		ot.LegID = leg.ID
		ot.Waits = 0
		ot.ContinueRequested = false
		if err := tx.PutOngoingTrip(ot); err != nil {
			return err
		}
		c.Destination = to
		c.Station = ""
		c.AssignNextTask = false
		if err := tx.PutCarrier(c); err != nil {
			return err
		}
		prev = tr.Status
		tr.Status = model.TripEnRoute
		return tx.PutTrip(tr)
	})
	if err != nil {
		return model.TripLeg{}, fmt.Errorf("start leg for %s: %w", carrier, err)
	}
	l.emit(tr, prev, fmt.Sprintf("leg %s -> %s", leg.From, leg.To))
	l.move(ctx, carrier, leg, dest)
	return leg, nil
}

// RequestContinue flags the open leg of carrier to be resumed.
func (l *Lifecycle) RequestContinue(ctx context.Context, carrier string) error {
	return l.store.Update(ctx, func(tx store.Tx) error {
		ot, err := tx.OngoingTripByCarrier(carrier)
		if err != nil {
			return err
		}
		if ot.ContinueRequested {
			return nil
		}
		ot.ContinueRequested = true
		if err := tx.PutOngoingTrip(ot); err != nil {
			return err
		}
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		c.AssignNextTask = true
		return tx.PutCarrier(c)
	})
}

// ContinueLeg resends the move of an unfinished leg after a requested
// continuation.
func (l *Lifecycle) ContinueLeg(ctx context.Context, carrier string) (model.TripLeg, error) {
	var (
		leg  model.TripLeg
		dest model.Station
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		ot, err := tx.OngoingTripByCarrier(carrier)
		if err != nil {
			return err
		}
		if !ot.ContinueRequested {
			return fmt.Errorf("carrier %s: continuation not requested: %w", carrier, ErrConflict)
		}
		if leg, err = tx.TripLeg(ot.LegID); err != nil {
			return err
		}
		if leg.Finished() {
			return fmt.Errorf("leg %d: %w", leg.ID, ErrStaleEvent)
		}
		if dest, err = tx.Station(leg.To); err != nil {
			return err
		}
		leg.Status = model.LegMoving
		leg.StoppageReason = ""
		if err := tx.PutTripLeg(leg); err != nil {
			return err
		}
		ot.ContinueRequested = false
		return tx.PutOngoingTrip(ot)
	})
	if err != nil {
		return model.TripLeg{}, fmt.Errorf("continue leg for %s: %w", carrier, err)
	}
	l.move(ctx, carrier, leg, dest)
	return leg, nil
}

func (l *Lifecycle) move(ctx context.Context, carrier string, leg model.TripLeg, dest model.Station) {
	if l.cmds == nil {
		return
	}
	_, err := l.cmds.Move(ctx, carrier, commands.Move{TripID: leg.TripID, TripLegID: leg.ID, Destination: dest.Name, Pose: dest.Pose})
	if err != nil {
		l.log.Errorf("move %s to %s: %v", carrier, dest.Name, err)
		notify.Send(ctx, l.notify, module, notify.LevelAlert, fmt.Sprintf("could not send move to %s: %v", dest.Name, err), carrier)
	}
}

// Reached is the arrival report of a carrier.
type Reached struct {
	TripID      int64      `json:"trip_id"`
	TripLegID   int64      `json:"trip_leg_id"`
	Destination string     `json:"destination_name"`
	Pose        model.Pose `json:"destination_pose"`
}

// Arrival describes the state after a leg ended.
type Arrival struct {
	Trip  model.Trip
	Leg   model.TripLeg
	Ended bool
	Waits model.WaitState
}

// EndLeg closes the open leg after checking the report against it, advances
// the cursor and either ends the trip or arms the station waits.
func (l *Lifecycle) EndLeg(ctx context.Context, carrier string, r Reached) (Arrival, error) {
	var (
		a    Arrival
		prev model.TripStatus
		reqs []commands.Peripheral
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		ot, err := tx.OngoingTripByCarrier(carrier)
		if err != nil {
			return fmt.Errorf("carrier %s has no trip: %w", carrier, ErrStaleEvent)
		}
		if ot.TripID != r.TripID || ot.LegID != r.TripLegID {
			return fmt.Errorf("reached trip %d leg %d, open is trip %d leg %d: %w", r.TripID, r.TripLegID, ot.TripID, ot.LegID, ErrStaleEvent)
		}
		leg, err := tx.TripLeg(ot.LegID)
		if err != nil {
			return err
		}
		if leg.Finished() {
			return fmt.Errorf("leg %d already ended: %w", leg.ID, ErrStaleEvent)
		}
		if r.Destination != "" && r.Destination != leg.To {
			return fmt.Errorf("reached %s, leg goes to %s: %w", r.Destination, leg.To, ErrStaleEvent)
		}
		st, err := tx.Station(leg.To)
		if err != nil {
			return err
		}
		if !r.Pose.Near(st.Pose) {
			return fmt.Errorf("pose is %.2fm away from %s: %w", r.Pose.Distance(st.Pose), st.Name, ErrStaleEvent)
		}
		leg.EndedAt = l.now()
		leg.Status = model.LegStopped
		if err := tx.PutTripLeg(leg); err != nil {
			return err
		}
		a.Leg = leg
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		c.Station = st.Name
		c.Pose = r.Pose
		c.Destination = ""
		c.AssignNextTask = true
		if err := tx.PutCarrier(c); err != nil {
			return err
		}
		tr, err := tx.Trip(ot.TripID)
		if err != nil {
			return err
		}
		ot.NextIdx++
		if ot.NextIdx >= len(tr.AugmentedRoute) {
			a.Ended = true
			a.Trip, prev, err = l.finishTx(tx, tr.ID, model.TripSucceeded)
			return err
		}
		ot.Waits, reqs = postActions(st, tr, ot.NextIdx-1)
		a.Waits = ot.Waits
		if err := tx.PutOngoingTrip(ot); err != nil {
			return err
		}
		prev = tr.Status
		tr.Status = model.TripWaitingStation
		tr.Progress = progress(tr.ETAs, ot.NextIdx)
		a.Trip = tr
		return tx.PutTrip(tr)
	})
	if err != nil {
		return Arrival{}, fmt.Errorf("end leg for %s: %w", carrier, err)
	}
	if a.Ended {
		l.ended(ctx, a.Trip, prev, "")
		return a, nil
	}
	l.emit(a.Trip, prev, "reached "+a.Leg.To)
	l.request(ctx, carrier, a.Leg.To, a.Waits, reqs)
	return a, nil
}

// request issues the peripheral requests of a stop and asks the operator
// for the dispatch button when waits holds it.
func (l *Lifecycle) request(ctx context.Context, carrier, station string, waits model.WaitState, reqs []commands.Peripheral) {
	for _, p := range reqs {
		if l.cmds == nil {
			break
		}
		if _, err := l.cmds.Peripheral(ctx, carrier, p); err != nil {
			l.log.Errorf("peripheral %s at %s: %v", p.Device, p.Station, err)
		}
	}
	if waits.Has(model.WaitDispatchStart) {
		notify.Send(ctx, l.notify, module, notify.LevelAction, fmt.Sprintf("press dispatch button at %s", station), carrier, station)
	}
}

// postActions arms the waits required at station, the idx-th stop of the
// augmented route, and returns the peripheral requests to issue.
func postActions(st model.Station, tr model.Trip, idx int) (model.WaitState, []commands.Peripheral) {
	var (
		w    model.WaitState
		reqs []commands.Peripheral
	)
	if st.Has(model.PropAutoHitch) {
		w = w.Arm(model.WaitHitchStart)
		reqs = append(reqs, commands.Peripheral{Device: model.DeviceAutoHitch, Station: st.Name})
	}
	if st.Has(model.PropAutoUnhitch) {
		w = w.Arm(model.WaitUnhitchStart)
		reqs = append(reqs, commands.Peripheral{Device: model.DeviceAutoUnhitch, Station: st.Name})
	}
	if st.Has(model.PropConveyor) {
		units, _ := strconv.Atoi(tr.Metadata[model.MetaNumUnits])
		dev, wait := model.DeviceConveyorSend, model.WaitConveyorSendStart
		if idx == 0 {
			dev, wait = model.DeviceConveyorReceive, model.WaitConveyorReceiveStart
		}
		w = w.Arm(wait)
		reqs = append(reqs, commands.Peripheral{Device: dev, Station: st.Name, NumUnits: units})
	}
	if !st.Has(model.PropDispatchNotRequired) {
		w = w.Arm(model.WaitDispatchStart)
	}
	return w, reqs
}

// LegReport is a movement update for an open leg.
type LegReport struct {
	TripID         int64           `json:"trip_id"`
	TripLegID      int64           `json:"trip_leg_id"`
	ETA            float64         `json:"eta"`
	Status         model.LegStatus `json:"status"`
	StoppageReason string          `json:"stoppage_reason"`
}

// UpdateLeg records the movement status of an open leg and forwards it to
// the analytics sink.
func (l *Lifecycle) UpdateLeg(ctx context.Context, carrier string, r LegReport) (model.TripLeg, error) {
	var (
		leg   model.TripLeg
		fleet string
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if leg, err = tx.TripLeg(r.TripLegID); err != nil {
			return err
		}
		if leg.TripID != r.TripID || leg.Finished() {
			return fmt.Errorf("trip %d leg %d: %w", r.TripID, r.TripLegID, ErrStaleEvent)
		}
		tr, err := tx.Trip(leg.TripID)
		if err != nil {
			return err
		}
		if tr.Carrier != carrier {
			return fmt.Errorf("trip %d is held by %s: %w", tr.ID, tr.Carrier, ErrStaleEvent)
		}
		fleet = tr.Fleet
		if r.Status != "" {
			leg.Status = r.Status
		}
		leg.StoppageReason = r.StoppageReason
		if r.ETA > 0 {
			leg.ETA = r.ETA
		}
		return tx.PutTripLeg(leg)
	})
	if err != nil {
		return model.TripLeg{}, fmt.Errorf("update leg: %w", err)
	}
	if err := metrics.RecordLeg(l.metrics, metrics.LegStatusEvent{
		TripID:         leg.TripID,
		LegID:          leg.ID,
		Fleet:          fleet,
		Carrier:        carrier,
		From:           leg.From,
		To:             leg.To,
		Status:         leg.Status,
		StoppageReason: leg.StoppageReason,
		ETA:            leg.ETA,
		Time:           l.now(),
	}); err != nil {
		l.log.Warnf("leg metrics: %v", err)
	}
	return leg, nil
}
