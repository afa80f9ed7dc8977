package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink receives the
// record even when an earlier one fails.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) each(record func(MetricsSink) error) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordDispatchCycle(c DispatchCycle) error {
	return m.each(func(s MetricsSink) error { return s.RecordDispatchCycle(c) })
}

func (m *MultiSink) RecordTripEvent(ev TripEvent) error {
	return m.each(func(s MetricsSink) error { return RecordTrip(s, ev) })
}

func (m *MultiSink) RecordLegStatus(ev LegStatusEvent) error {
	return m.each(func(s MetricsSink) error { return RecordLeg(s, ev) })
}

func (m *MultiSink) RecordVisa(ev VisaEvent) error {
	return m.each(func(s MetricsSink) error { return RecordVisa(s, ev) })
}

func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	return m.each(func(s MetricsSink) error { return RecordCommand(s, ev) })
}

func (m *MultiSink) RecordCarrierEvent(ev CarrierEvent) error {
	return m.each(func(s MetricsSink) error { return RecordCarrier(s, ev) })
}
