package model

import (
	"slices"
	"time"
)

// ZoneKind distinguishes lane zones from station zones.
type ZoneKind string

const (
	ZoneLane    ZoneKind = "lane"
	ZoneStation ZoneKind = "station"
)

// ExclusionZone is a shared area carriers must hold a visa for.
type ExclusionZone struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Kind            ZoneKind `json:"kind" yaml:"kind"`
	Pose            Pose     `json:"pose" yaml:"pose"`
	Stations        []string `json:"stations" yaml:"stations"`
	LinkedGates     []string `json:"linked_gates" yaml:"linked_gates"`
	ExclusiveAccess bool     `json:"exclusive_access" yaml:"exclusive_access"` // access mode requested on approach
	Exclusive       bool     `json:"exclusive"`                                // held exclusively right now
	Holders         []string `json:"holders"`
	Waiting         []string `json:"waiting"`
}

// Clone returns a deep copy.
func (z ExclusionZone) Clone() ExclusionZone {
	z.Stations = slices.Clone(z.Stations)
	z.LinkedGates = slices.Clone(z.LinkedGates)
	z.Holders = slices.Clone(z.Holders)
	z.Waiting = slices.Clone(z.Waiting)
	return z
}

// HeldBy reports whether carrier is among the holders.
func (z ExclusionZone) HeldBy(carrier string) bool {
	return slices.Contains(z.Holders, carrier)
}

// Covers reports whether the station lies inside the zone.
func (z ExclusionZone) Covers(station string) bool {
	return station != "" && slices.Contains(z.Stations, station)
}

// VisaAssignment records a zone held by a carrier.
type VisaAssignment struct {
	Zone      string    `json:"zone"`
	Carrier   string    `json:"carrier"`
	Exclusive bool      `json:"exclusive"`
	GrantedAt time.Time `json:"granted_at"`
}
