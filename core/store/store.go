// Package store defines the entity store used by the dispatch core. All
// state transitions run inside Update so a failed step leaves no trace.
package store

import (
	"context"
	"errors"

	"github.com/kilianp07/fleetcore/core/model"
)

var (
	// ErrNotFound is returned by lookups of unknown entities.
	ErrNotFound = errors.New("entity not found")
	// ErrReadOnly is returned by writes attempted inside View.
	ErrReadOnly = errors.New("read-only transaction")
)

// Store runs transactions against the entity arena.
type Store interface {
	// Update runs fn in a read/write transaction. Changes are committed only
	// when fn returns nil.
	Update(ctx context.Context, fn func(Tx) error) error
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx exposes typed lookups and writes. Relations are ids, never pointers.
// Returned values are copies; mutate them and Put them back.
type Tx interface {
	Fleet(name string) (model.Fleet, error)
	Fleets() []model.Fleet
	PutFleet(model.Fleet) error

	Station(name string) (model.Station, error)
	Stations(fleet string) []model.Station
	PutStation(model.Station) error

	Carrier(name string) (model.Carrier, error)
	Carriers(fleet string) []model.Carrier
	PutCarrier(model.Carrier) error
	CarrierStatus(name string) (model.CarrierStatus, error)
	PutCarrierStatus(model.CarrierStatus) error

	Trip(id int64) (model.Trip, error)
	TripByBooking(bookingID string) (model.Trip, error)
	PutTrip(model.Trip) error
	NextTripID() int64

	TripLeg(id int64) (model.TripLeg, error)
	PutTripLeg(model.TripLeg) error
	NextTripLegID() int64

	PendingTrip(tripID int64) (model.PendingTrip, error)
	PendingTrips(fleet string) []model.PendingTrip
	PutPendingTrip(model.PendingTrip) error
	DeletePendingTrip(tripID int64) error

	OngoingTrip(tripID int64) (model.OngoingTrip, error)
	OngoingTripByCarrier(carrier string) (model.OngoingTrip, error)
	PutOngoingTrip(model.OngoingTrip) error
	DeleteOngoingTrip(tripID int64) error

	Zone(id string) (model.ExclusionZone, error)
	Zones() []model.ExclusionZone
	PutZone(model.ExclusionZone) error

	Visa(zone, carrier string) (model.VisaAssignment, error)
	Visas(carrier string) []model.VisaAssignment
	PutVisa(model.VisaAssignment) error
	DeleteVisa(zone, carrier string) error
}
