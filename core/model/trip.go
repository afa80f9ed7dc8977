package model

import (
	"maps"
	"slices"
	"time"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripBooked         TripStatus = "BOOKED"
	TripAssigned       TripStatus = "ASSIGNED"
	TripEnRoute        TripStatus = "EN_ROUTE"
	TripWaitingStation TripStatus = "WAITING_STATION"
	TripSucceeded      TripStatus = "SUCCEEDED"
	TripFailed         TripStatus = "FAILED"
	TripCancelled      TripStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s TripStatus) Terminal() bool {
	return s == TripSucceeded || s == TripFailed || s == TripCancelled
}

// Metadata keys understood by the control plane.
const (
	MetaNumUnits       = "num_units"       // conveyor unit count
	MetaScheduledStart = "scheduled_start" // RFC3339, trip stays out of dispatch until then
	MetaCarrier        = "carrier"         // pins the trip to a carrier
	MetaParkingFor     = "parking_for"     // marks a parking trip of the named carrier
	MetaParkAfter      = "park_after"      // "true" appends the carrier parking station
)

// Trip is a booked journey over an ordered list of stations.
type Trip struct {
	ID             int64             `json:"id"`
	BookingID      string            `json:"booking_id"`
	Fleet          string            `json:"fleet"`
	Route          []string          `json:"route"`
	AugmentedRoute []string          `json:"augmented_route"`
	ETAs           []float64         `json:"etas"` // seconds, one per augmented route hop
	Priority       float64           `json:"priority"`
	Status         TripStatus        `json:"status"`
	Carrier        string            `json:"carrier"`
	BookedBy       string            `json:"booked_by"`
	BookedAt       time.Time         `json:"booked_at"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        time.Time         `json:"ended_at"`
	Progress       float64           `json:"progress"`
	Metadata       map[string]string `json:"metadata"`
}

// Clone returns a deep copy.
func (t Trip) Clone() Trip {
	t.Route = slices.Clone(t.Route)
	t.AugmentedRoute = slices.Clone(t.AugmentedRoute)
	t.ETAs = slices.Clone(t.ETAs)
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

// ParkingFor reports whether the trip is the parking trip of carrier.
func (t Trip) ParkingFor(carrier string) bool {
	return t.Metadata[MetaParkingFor] != "" && t.Metadata[MetaParkingFor] == carrier
}

// LegStatus is the movement state reported for an open leg.
type LegStatus string

const (
	LegMoving     LegStatus = "MOVING"
	LegMovingSlow LegStatus = "MOVING_SLOW"
	LegStopped    LegStatus = "STOPPED"
)

// TripLeg is one hop of a trip.
type TripLeg struct {
	ID             int64     `json:"id"`
	TripID         int64     `json:"trip_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	Status         LegStatus `json:"status"`
	StoppageReason string    `json:"stoppage_reason"`
	ETA            float64   `json:"eta"`
}

// Finished reports whether the carrier reported arrival for the leg.
func (l TripLeg) Finished() bool { return !l.EndedAt.IsZero() }

// PendingTrip queues a trip for dispatch. Carrier is the hint set by the
// last dispatch cycle that matched it.
type PendingTrip struct {
	TripID  int64  `json:"trip_id"`
	Fleet   string `json:"fleet"`
	Carrier string `json:"carrier"`
}

// OngoingTrip tracks a trip held by a carrier.
type OngoingTrip struct {
	TripID            int64     `json:"trip_id"`
	Carrier           string    `json:"carrier"`
	NextIdx           int       `json:"next_idx"` // cursor into the augmented route
	LegID             int64     `json:"leg_id"`   // zero before the first leg
	Waits             WaitState `json:"waits"`
	ContinueRequested bool      `json:"continue_requested"`
}
