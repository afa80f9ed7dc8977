package metrics

import (
	"time"

	"github.com/kilianp07/fleetcore/core/model"
)

// DispatchCycle summarises one dispatch run over a fleet.
type DispatchCycle struct {
	Fleet       string
	Trips       int
	Carriers    int
	Assignments int
	Infeasible  int
	Errors      int
	Skipped     bool
	Duration    time.Duration
	Time        time.Time
}

// MetricsSink records dispatch cycles for observability purposes.
type MetricsSink interface {
	RecordDispatchCycle(c DispatchCycle) error
}

// TripEvent is a trip status transition.
type TripEvent struct {
	TripID   int64
	Fleet    string
	Carrier  string
	Status   model.TripStatus
	Progress float64
	Time     time.Time
}

// TripEventRecorder records trip transitions.
type TripEventRecorder interface {
	RecordTripEvent(ev TripEvent) error
}

// LegStatusEvent is a movement report for an open trip leg.
type LegStatusEvent struct {
	TripID         int64
	LegID          int64
	Fleet          string
	Carrier        string
	From           string
	To             string
	Status         model.LegStatus
	StoppageReason string
	ETA            float64
	Time           time.Time
}

// LegStatusRecorder records trip leg analytics.
type LegStatusRecorder interface {
	RecordLegStatus(ev LegStatusEvent) error
}

// VisaEvent is the outcome of a zone access request.
type VisaEvent struct {
	Carrier string
	Zone    string
	Result  string // granted, denied, released
	Time    time.Time
}

// VisaRecorder records zone access decisions.
type VisaRecorder interface {
	RecordVisa(ev VisaEvent) error
}

// CommandEvent is the outcome of a command sent to a carrier.
type CommandEvent struct {
	CommandID    string
	Carrier      string
	Kind         string
	Acknowledged bool
	Latency      time.Duration
	Time         time.Time
}

// CommandRecorder records carrier command outcomes.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// CarrierEvent is a change of a carrier's connectivity or workload.
type CarrierEvent struct {
	Carrier string
	Fleet   string
	Event   string // disconnected or assigned
	Time    time.Time
}

// CarrierEventRecorder records carrier connectivity changes.
type CarrierEventRecorder interface {
	RecordCarrierEvent(ev CarrierEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordDispatchCycle(DispatchCycle) error { return nil }
func (NopSink) RecordTripEvent(TripEvent) error         { return nil }
func (NopSink) RecordLegStatus(LegStatusEvent) error    { return nil }
func (NopSink) RecordVisa(VisaEvent) error              { return nil }
func (NopSink) RecordCommand(CommandEvent) error        { return nil }
func (NopSink) RecordCarrierEvent(CarrierEvent) error   { return nil }

// RecordTrip forwards ev when s supports trip events.
func RecordTrip(s MetricsSink, ev TripEvent) error {
	if r, ok := s.(TripEventRecorder); ok {
		return r.RecordTripEvent(ev)
	}
	return nil
}

// RecordLeg forwards ev when s supports leg analytics.
func RecordLeg(s MetricsSink, ev LegStatusEvent) error {
	if r, ok := s.(LegStatusRecorder); ok {
		return r.RecordLegStatus(ev)
	}
	return nil
}

// RecordVisa forwards ev when s supports visa events.
func RecordVisa(s MetricsSink, ev VisaEvent) error {
	if r, ok := s.(VisaRecorder); ok {
		return r.RecordVisa(ev)
	}
	return nil
}

// RecordCommand forwards ev when s supports command events.
func RecordCommand(s MetricsSink, ev CommandEvent) error {
	if r, ok := s.(CommandRecorder); ok {
		return r.RecordCommand(ev)
	}
	return nil
}

// RecordCarrier forwards ev when s supports carrier events.
func RecordCarrier(s MetricsSink, ev CarrierEvent) error {
	if r, ok := s.(CarrierEventRecorder); ok {
		return r.RecordCarrierEvent(ev)
	}
	return nil
}
