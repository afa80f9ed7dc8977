package model

import (
	"slices"
	"time"
)

// DisableReason explains why a carrier was taken out of service.
type DisableReason string

const (
	ReasonNone           DisableReason = ""
	ReasonStaleHeartbeat DisableReason = "stale_heartbeat"
	ReasonManual         DisableReason = "manual"
	ReasonEmergencyStop  DisableReason = "emergency_stop"
	ReasonCarrierError   DisableReason = "carrier_error"
)

// Manual reports whether only an operator action may clear the reason.
func (r DisableReason) Manual() bool {
	return r == ReasonManual || r == ReasonEmergencyStop
}

// Carrier is an autonomous mobile robot of a fleet.
type Carrier struct {
	Name             string        `json:"name" yaml:"name"`
	Fleet            string        `json:"fleet" yaml:"fleet"`
	Address          string        `json:"address" yaml:"address"`
	ParkingStation   string        `json:"parking_station" yaml:"parking_station"`
	ExcludedStations []string      `json:"excluded_stations" yaml:"excluded_stations"`
	ParkingMode      bool          `json:"parking_mode" yaml:"parking_mode"`
	Inducted         bool          `json:"inducted" yaml:"inducted"`
	Initialized      bool          `json:"initialized"`
	Pose             Pose          `json:"pose" yaml:"pose"`
	Station          string        `json:"station"`     // station the carrier stands at, empty while moving
	Destination      string        `json:"destination"` // station of the open leg
	TripID           int64         `json:"trip_id"`     // zero when no trip is held
	Disabled         bool          `json:"disabled"`
	DisableReason    DisableReason `json:"disable_reason"`
	LastHeartbeat    time.Time     `json:"last_heartbeat"`
	AssignNextTask   bool          `json:"assign_next_task"`
}

// Clone returns a deep copy.
func (c Carrier) Clone() Carrier {
	c.ExcludedStations = slices.Clone(c.ExcludedStations)
	return c
}

// Available is the dispatch availability predicate: inducted, idle,
// initialized and enabled.
func (c Carrier) Available() bool {
	return c.Schedulable() && c.TripID == 0
}

// Schedulable is Available without the idle requirement.
func (c Carrier) Schedulable() bool {
	return c.Inducted && c.Initialized && !c.Disabled
}

// CarrierStatus is the last telemetry reported by a carrier.
type CarrierStatus struct {
	Carrier string    `json:"carrier"`
	Pose    Pose      `json:"pose"`
	Battery float64   `json:"battery"`
	Mode    string    `json:"mode"`
	Error   string    `json:"error"`
	Updated time.Time `json:"updated"`
}
