package events

import "github.com/kilianp07/fleetcore/core/model"

// TripEvent is published after a trip status transition is committed.
type TripEvent struct {
	TripID  int64
	Fleet   string
	Carrier string
	From    model.TripStatus
	To      model.TripStatus
	Reason  string
}

// AssignmentEvent is published for every pairing produced by a dispatch
// cycle.
type AssignmentEvent struct {
	Fleet   string
	TripID  int64
	Carrier string
	Cost    float64
}
