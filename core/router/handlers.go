package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/fleetcore/core/assign"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/core/trip"
)

// BookResult answers a Book message.
type BookResult struct {
	Trip       model.Trip
	Validation trip.Validation
}

// StatusResult answers a CarrierStatus message.
type StatusResult struct {
	AvailabilityChanged bool
	Tasks               []assign.Task
}

func (r *Router) book(ctx context.Context, m Message) (any, error) {
	b, err := payload[trip.Booking](m)
	if err != nil {
		return nil, err
	}
	if b.BookedBy == "" {
		b.BookedBy = m.Source
	}
	tr, v, err := r.deps.Trips.Book(ctx, b)
	if err != nil {
		return nil, err
	}
	if !v.OK {
		r.log.Infof("booking from %s rejected: %s", m.Source, v.Reason)
	}
	return BookResult{Trip: tr, Validation: v}, nil
}

func (r *Router) reached(ctx context.Context, m Message) (any, error) {
	p, err := payload[trip.Reached](m)
	if err != nil {
		return nil, err
	}
	a, err := r.deps.Trips.EndLeg(ctx, m.Carrier, p)
	if err != nil {
		return nil, err
	}
	if _, err := r.deps.Zones.OnPosition(ctx, m.Carrier, p.Pose, nil); err != nil {
		r.log.Warnf("zones after arrival of %s: %v", m.Carrier, err)
	}
	if _, err := r.deps.Assigner.Run(ctx, m.Carrier); err != nil {
		return a, err
	}
	return a, nil
}

func (r *Router) carrierStatus(ctx context.Context, m Message) (any, error) {
	st, err := payload[model.CarrierStatus](m)
	if err != nil {
		return nil, err
	}
	st.Carrier = m.Carrier
	changed, err := r.deps.Health.Heartbeat(ctx, st)
	if err != nil {
		return nil, err
	}
	dest, err := r.destination(ctx, m.Carrier)
	if err != nil {
		return nil, err
	}
	if _, err := r.deps.Zones.OnPosition(ctx, m.Carrier, st.Pose, dest); err != nil {
		return nil, err
	}
	tasks, err := r.deps.Assigner.Run(ctx, m.Carrier)
	return StatusResult{AvailabilityChanged: changed, Tasks: tasks}, err
}

// destination returns the pose of the station the carrier drives to, or nil.
func (r *Router) destination(ctx context.Context, carrier string) (*model.Pose, error) {
	var dest *model.Pose
	err := r.deps.Store.View(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil || c.Destination == "" {
			return err
		}
		st, err := tx.Station(c.Destination)
		if err != nil {
			return err
		}
		dest = &st.Pose
		return nil
	})
	return dest, err
}

func (r *Router) tripStatus(ctx context.Context, m Message) (any, error) {
	p, err := payload[trip.LegReport](m)
	if err != nil {
		return nil, err
	}
	return r.deps.Trips.UpdateLeg(ctx, m.Carrier, p)
}

func (r *Router) peripheralAck(ctx context.Context, m Message) (any, error) {
	p, err := payload[PeripheralAck](m)
	if err != nil {
		return nil, err
	}
	ot, err := r.deps.Trips.HandlePeripheral(ctx, m.Carrier, p.Device, p.Phase)
	if err != nil {
		return nil, err
	}
	if _, err := r.deps.Assigner.Run(ctx, m.Carrier); err != nil {
		return ot, err
	}
	return ot, nil
}

func (r *Router) resourceAccess(ctx context.Context, m Message) (any, error) {
	p, err := payload[ResourceAccess](m)
	if err != nil {
		return nil, err
	}
	carrier := m.Carrier
	if carrier == "" {
		carrier = m.Source
	}
	id, err := r.zoneID(ctx, p)
	if err != nil {
		return nil, err
	}
	switch p.VisaType {
	case VisaRequest, "":
		return r.deps.Zones.Request(ctx, carrier, id, p.Exclusive)
	case VisaRelease:
		return r.deps.Zones.Release(ctx, carrier, id)
	}
	return nil, fmt.Errorf("resource access: unknown visa type %q", p.VisaType)
}

// zoneID resolves a zone given by id or by name.
func (r *Router) zoneID(ctx context.Context, p ResourceAccess) (string, error) {
	if p.ZoneID != "" {
		return p.ZoneID, nil
	}
	var id string
	err := r.deps.Store.View(ctx, func(tx store.Tx) error {
		for _, z := range tx.Zones() {
			if z.Name == p.ZoneName {
				id = z.ID
				return nil
			}
		}
		return fmt.Errorf("zone %q: %w", p.ZoneName, store.ErrNotFound)
	})
	return id, err
}

// tripID resolves a trip given by id or by booking id.
func (r *Router) tripID(ctx context.Context, p DeleteTrip) (int64, error) {
	if p.TripID != 0 {
		return p.TripID, nil
	}
	if p.BookingID == "" {
		return 0, errors.New("trip_id or booking_id required")
	}
	return r.deps.Trips.TripID(ctx, p.BookingID)
}

func (r *Router) deleteOngoingTrip(ctx context.Context, m Message) (any, error) {
	p, err := payload[DeleteTrip](m)
	if err != nil {
		return nil, err
	}
	id, err := r.tripID(ctx, p)
	if err != nil {
		return nil, err
	}
	reason := p.Reason
	if reason == "" {
		reason = "deleted by " + m.Source
	}
	tr, err := r.deps.Trips.ForceEnd(ctx, id, reason)
	if err != nil {
		return nil, err
	}
	if tr.Carrier != "" {
		if _, err := r.deps.Zones.ReleaseAll(ctx, tr.Carrier); err != nil {
			return tr, err
		}
	}
	return tr, nil
}

func (r *Router) deleteBookedTrip(ctx context.Context, m Message) (any, error) {
	p, err := payload[DeleteTrip](m)
	if err != nil {
		return nil, err
	}
	id, err := r.tripID(ctx, p)
	if err != nil {
		return nil, err
	}
	reason := p.Reason
	if reason == "" {
		reason = "deleted by " + m.Source
	}
	return r.deps.Trips.Cancel(ctx, id, reason)
}

func (r *Router) inductCarrier(ctx context.Context, m Message) (any, error) {
	p, err := payload[InductCarrier](m)
	if err != nil {
		return nil, err
	}
	var c model.Carrier
	err = r.deps.Store.Update(ctx, func(tx store.Tx) error {
		var err error
		if c, err = tx.Carrier(m.Carrier); err != nil {
			return err
		}
		c.Inducted = p.Induct
		c.AssignNextTask = p.Induct
		return tx.PutCarrier(c)
	})
	if err != nil {
		return nil, fmt.Errorf("induct %s: %w", m.Carrier, err)
	}
	request.Touch(ctx, c.Fleet)
	if !p.Induct {
		_, err := r.deps.Zones.ReleaseAll(ctx, m.Carrier)
		return c, err
	}
	if _, err := r.deps.Zones.Prime(ctx, m.Carrier); err != nil {
		return c, err
	}
	_, err = r.deps.Assigner.Run(ctx, m.Carrier)
	return c, err
}

func (r *Router) triggerDispatch(ctx context.Context, m Message) (any, error) {
	p, err := payload[TriggerOptimalDispatch](m)
	if err != nil {
		return nil, err
	}
	return nil, r.deps.Store.View(ctx, func(tx store.Tx) error {
		if p.Fleet == "" {
			for _, f := range tx.Fleets() {
				request.Touch(ctx, f.Name)
			}
			return nil
		}
		if _, err := tx.Fleet(p.Fleet); err != nil {
			return fmt.Errorf("fleet %q: %w", p.Fleet, err)
		}
		request.Touch(ctx, p.Fleet)
		return nil
	})
}

func (r *Router) assignNextTask(ctx context.Context, m Message) (any, error) {
	return r.deps.Assigner.Run(ctx, m.Carrier)
}

func (r *Router) healthCheck(ctx context.Context, _ Message) (any, error) {
	return r.deps.Health.Check(ctx)
}

func (r *Router) commandAck(_ context.Context, m Message) (any, error) {
	p, err := payload[CommandAck](m)
	if err != nil {
		return nil, err
	}
	ok := r.deps.Replies.Resolve(p.CommandID)
	if !ok {
		r.log.Warnf("ack from %s for unknown or expired command %s", m.Carrier, p.CommandID)
	}
	return ok, nil
}

func (r *Router) continueLeg(ctx context.Context, m Message) (any, error) {
	if m.Carrier == "" {
		return nil, ErrNoCarrier
	}
	if err := r.deps.Trips.RequestContinue(ctx, m.Carrier); err != nil {
		return nil, fmt.Errorf("continue %s: %w", m.Carrier, err)
	}
	if err := r.touchCarrier(ctx, m.Carrier); err != nil {
		return nil, err
	}
	return r.deps.Assigner.Run(ctx, m.Carrier)
}

func (r *Router) carrierMode(ctx context.Context, m Message) (any, error) {
	p, err := payload[CarrierMode](m)
	if err != nil {
		return nil, err
	}
	if m.Carrier == "" {
		return nil, ErrNoCarrier
	}
	if !p.Mode.Manual() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, p.Mode)
	}
	if p.Enabled {
		return nil, r.deps.Health.Disable(ctx, m.Carrier, p.Mode)
	}
	if err := r.deps.Health.Enable(ctx, m.Carrier, p.Mode); err != nil {
		return nil, err
	}
	return r.deps.Assigner.Run(ctx, m.Carrier)
}

// touchCarrier marks the fleet of carrier for dispatch.
func (r *Router) touchCarrier(ctx context.Context, carrier string) error {
	return r.deps.Store.View(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		request.Touch(ctx, c.Fleet)
		return nil
	})
}
