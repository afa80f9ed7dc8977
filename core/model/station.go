package model

import "slices"

// StationProperty flags a capability or requirement of a station.
type StationProperty string

const (
	PropParking             StationProperty = "parking"
	PropPickup              StationProperty = "pickup"
	PropDrop                StationProperty = "drop"
	PropAutoHitch           StationProperty = "auto_hitch"
	PropAutoUnhitch         StationProperty = "auto_unhitch"
	PropDispatchNotRequired StationProperty = "dispatch_not_required"
	PropConveyor            StationProperty = "conveyor"
	PropCharging            StationProperty = "charging"
)

// Station is a named stop on the site map.
type Station struct {
	Name       string            `json:"name" yaml:"name"`
	Fleet      string            `json:"fleet" yaml:"fleet"`
	Pose       Pose              `json:"pose" yaml:"pose"`
	Properties []StationProperty `json:"properties" yaml:"properties"`
	Disabled   bool              `json:"disabled" yaml:"disabled"`
}

// Has reports whether the station carries the property.
func (s Station) Has(p StationProperty) bool {
	return slices.Contains(s.Properties, p)
}

// Clone returns a deep copy.
func (s Station) Clone() Station {
	s.Properties = slices.Clone(s.Properties)
	return s
}

// FleetStatus is the operating state of a fleet.
type FleetStatus string

const (
	FleetRunning     FleetStatus = "RUNNING"
	FleetStopped     FleetStatus = "STOPPED"
	FleetMaintenance FleetStatus = "MAINTENANCE"
)

// Fleet groups carriers and stations operating on the same map.
type Fleet struct {
	Name           string      `json:"name" yaml:"name"`
	Customer       string      `json:"customer" yaml:"customer"`
	Status         FleetStatus `json:"status" yaml:"status"`
	LastAssignment int64       `json:"last_assignment"` // unix nanoseconds of the last dispatch that paired trips
}
