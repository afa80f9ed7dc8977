package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
)

// PromSink records control plane events in Prometheus metrics.
type PromSink struct {
	cycles      *prometheus.CounterVec
	pending     *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	trips       *prometheus.CounterVec
	legs        *prometheus.CounterVec
	visas       *prometheus.CounterVec
	commands    *prometheus.CounterVec
	cmdLatency  *prometheus.HistogramVec
	disconnects *prometheus.CounterVec
}

// NewPromSink registers the collectors on reg, or on the default registerer
// when reg is nil. Collectors already registered are reused, so several
// sinks on one registry share their series. StartPromServer exposes them.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	var err error
	s := &PromSink{}
	if s.cycles, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_dispatch_cycles_total",
		Help: "Dispatch cycles per fleet",
	}, []string{"fleet", "skipped"})); err != nil {
		return nil, err
	}
	if s.pending, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_pending_trips",
		Help: "Trips in the pickup queue at the last dispatch cycle",
	}, []string{"fleet"})); err != nil {
		return nil, err
	}
	if s.available, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_available_carriers",
		Help: "Carriers available to dispatch at the last cycle",
	}, []string{"fleet"})); err != nil {
		return nil, err
	}
	if s.trips, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trips_total",
		Help: "Trip status transitions",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.legs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trip_leg_reports_total",
		Help: "Movement reports of open trip legs",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.visas, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visa_requests_total",
		Help: "Zone access decisions",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_commands_total",
		Help: "Commands sent to carriers by outcome",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}
	if s.cmdLatency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carrier_command_latency_seconds",
		Help:    "Time between command send and acknowledgment",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if s.disconnects, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "carrier_disconnects_total",
		Help: "Carriers disabled for a stale heartbeat",
	}, []string{"fleet"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatchCycle counts the cycle and updates the queue gauges.
func (s *PromSink) RecordDispatchCycle(c coremetrics.DispatchCycle) error {
	s.cycles.WithLabelValues(c.Fleet, strconv.FormatBool(c.Skipped)).Inc()
	if !c.Skipped {
		s.pending.WithLabelValues(c.Fleet).Set(float64(c.Trips))
		s.available.WithLabelValues(c.Fleet).Set(float64(c.Carriers))
	}
	return nil
}

// RecordTripEvent counts a trip transition.
func (s *PromSink) RecordTripEvent(ev coremetrics.TripEvent) error {
	s.trips.WithLabelValues(string(ev.Status)).Inc()
	return nil
}

// RecordLegStatus counts a leg movement report.
func (s *PromSink) RecordLegStatus(ev coremetrics.LegStatusEvent) error {
	s.legs.WithLabelValues(string(ev.Status)).Inc()
	return nil
}

// RecordVisa counts a zone access decision.
func (s *PromSink) RecordVisa(ev coremetrics.VisaEvent) error {
	s.visas.WithLabelValues(ev.Result).Inc()
	return nil
}

// RecordCommand counts a command outcome and observes its latency when
// acknowledged.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	result := "timeout"
	if ev.Acknowledged {
		result = "acknowledged"
		s.cmdLatency.WithLabelValues(ev.Kind).Observe(ev.Latency.Seconds())
	}
	s.commands.WithLabelValues(ev.Kind, result).Inc()
	return nil
}

// RecordCarrierEvent counts carrier disconnections.
func (s *PromSink) RecordCarrierEvent(ev coremetrics.CarrierEvent) error {
	if ev.Event == "disconnected" {
		s.disconnects.WithLabelValues(ev.Fleet).Inc()
	}
	return nil
}
