package trip

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
)

// Code identifies why a booking was rejected.
type Code string

const (
	CodeEmptyRoute      Code = "empty_route"
	CodeUnknownStation  Code = "unknown_station"
	CodeDisabledStation Code = "disabled_station"
	CodeMixedFleets     Code = "mixed_fleets"
	CodeUnknownFleet    Code = "unknown_fleet"
	CodeMissingUnits    Code = "missing_num_units"
	CodeBadPriority     Code = "bad_priority"
	CodeBadSchedule     Code = "bad_scheduled_start"
	CodeUnknownCarrier  Code = "unknown_carrier"
)

// Validation is the outcome of checking a booking. A rejected booking is not
// an error: the caller gets the reason and nothing is written.
type Validation struct {
	OK     bool   `json:"ok"`
	Code   Code   `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func invalid(code Code, format string, args ...any) Validation {
	return Validation{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Booking is a request for a new trip.
type Booking struct {
	BookingID string            `json:"booking_id"`
	Route     []string          `json:"route"`
	Priority  float64           `json:"priority"`
	Metadata  map[string]string `json:"metadata"`
	BookedBy  string            `json:"booked_by"`
}

// Book validates b and creates a BOOKED trip with its pending record. A
// booking id seen before returns the existing trip.
func (l *Lifecycle) Book(ctx context.Context, b Booking) (model.Trip, Validation, error) {
	var (
		tr  model.Trip
		v   Validation
		dup bool
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if b.BookingID != "" {
			existing, err := tx.TripByBooking(b.BookingID)
			if err == nil {
				tr, v, dup = existing, Validation{OK: true}, true
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		var fleet string
		fleet, v = validate(tx, b)
		if !v.OK {
			return nil
		}
		prio := b.Priority
		if prio == 0 {
			prio = 1
		}
		tr = model.Trip{
			ID:             tx.NextTripID(),
			BookingID:      b.BookingID,
			Fleet:          fleet,
			Route:          slices.Clone(b.Route),
			AugmentedRoute: slices.Clone(b.Route),
			Priority:       prio,
			Status:         model.TripBooked,
			BookedBy:       b.BookedBy,
			BookedAt:       l.now(),
			Metadata:       maps.Clone(b.Metadata),
		}
		if tr.BookingID == "" {
			tr.BookingID = uuid.NewString()
		}
		if err := tx.PutTrip(tr); err != nil {
			return err
		}
		return tx.PutPendingTrip(model.PendingTrip{TripID: tr.ID, Fleet: fleet})
	})
	if err != nil {
		return model.Trip{}, Validation{}, fmt.Errorf("book: %w", err)
	}
	if !v.OK {
		l.log.Infof("booking rejected (%s): %s", v.Code, v.Reason)
		return model.Trip{}, v, nil
	}
	if !dup {
		l.emit(tr, "", "booked")
		request.Touch(ctx, tr.Fleet)
	}
	return tr, v, nil
}

func validate(tx store.Tx, b Booking) (string, Validation) {
	if len(b.Route) == 0 {
		return "", invalid(CodeEmptyRoute, "route is empty")
	}
	if b.Priority < 0 {
		return "", invalid(CodeBadPriority, "priority %.2f is negative", b.Priority)
	}
	var fleet string
	for i, name := range b.Route {
		st, err := tx.Station(name)
		if errors.Is(err, store.ErrNotFound) {
			return "", invalid(CodeUnknownStation, "station %q does not exist", name)
		}
		if err != nil {
			return "", invalid(CodeUnknownStation, "station %q: %v", name, err)
		}
		if st.Disabled {
			return "", invalid(CodeDisabledStation, "station %q is disabled", name)
		}
		if i == 0 {
			fleet = st.Fleet
		} else if st.Fleet != fleet {
			return "", invalid(CodeMixedFleets, "station %q belongs to fleet %q, route started in %q", name, st.Fleet, fleet)
		}
		if st.Has(model.PropConveyor) {
			n, err := strconv.Atoi(b.Metadata[model.MetaNumUnits])
			if err != nil || n <= 0 {
				return "", invalid(CodeMissingUnits, "conveyor station %q requires %s metadata", name, model.MetaNumUnits)
			}
		}
	}
	if _, err := tx.Fleet(fleet); err != nil {
		return "", invalid(CodeUnknownFleet, "fleet %q does not exist", fleet)
	}
	if s, ok := b.Metadata[model.MetaScheduledStart]; ok {
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return "", invalid(CodeBadSchedule, "%s %q is not RFC3339", model.MetaScheduledStart, s)
		}
	}
	for _, key := range []string{model.MetaCarrier, model.MetaParkingFor} {
		name := b.Metadata[key]
		if name == "" {
			continue
		}
		c, err := tx.Carrier(name)
		if err != nil || c.Fleet != fleet {
			return "", invalid(CodeUnknownCarrier, "%s %q is not a carrier of fleet %q", key, name, fleet)
		}
	}
	return fleet, Validation{OK: true}
}

// Cancel removes a trip that is still queued. Trips already held by a
// carrier must be force ended instead.
func (l *Lifecycle) Cancel(ctx context.Context, tripID int64, reason string) (model.Trip, error) {
	var (
		tr   model.Trip
		prev model.TripStatus
	)
	err := l.store.Update(ctx, func(tx store.Tx) error {
		if _, err := tx.PendingTrip(tripID); err != nil {
			return fmt.Errorf("trip %d: %w", tripID, ErrNotPending)
		}
		var err error
		tr, prev, err = l.finishTx(tx, tripID, model.TripCancelled)
		return err
	})
	if err != nil {
		return model.Trip{}, fmt.Errorf("cancel: %w", err)
	}
	l.emit(tr, prev, reason)
	request.Touch(ctx, tr.Fleet)
	notify.Send(ctx, l.notify, module, notify.LevelInfo, fmt.Sprintf("trip %d cancelled: %s", tr.ID, reason), tr.BookingID)
	return tr, nil
}

// TripID resolves a booking id to its trip id.
func (l *Lifecycle) TripID(ctx context.Context, bookingID string) (int64, error) {
	var id int64
	err := l.store.View(ctx, func(tx store.Tx) error {
		tr, err := tx.TripByBooking(bookingID)
		id = tr.ID
		return err
	})
	return id, err
}
