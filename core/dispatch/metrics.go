package dispatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// engineMetrics are the engine's own Prometheus collectors. Engines sharing
// a registerer share the collectors.
type engineMetrics struct {
	duration     *prometheus.HistogramVec
	assignments  *prometheus.CounterVec
	infeasible   *prometheus.GaugeVec
	skipped      *prometheus.CounterVec
	oracleErrors prometheus.Counter
}

func newEngineMetrics(reg prometheus.Registerer) (*engineMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &engineMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_cycle_duration_seconds",
			Help:    "Duration of a dispatch cycle over one fleet",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"fleet"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_assignments_total",
			Help: "Trip to carrier pairings produced",
		}, []string{"fleet"}),
		infeasible: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dispatch_infeasible_cells",
			Help: "Infeasible cells of the last cost matrix",
		}, []string{"fleet"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_cycles_skipped_total",
			Help: "Dispatch cycles skipped because the fleet did not change",
		}, []string{"fleet"}),
		oracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_oracle_errors_total",
			Help: "Routing oracle failures while building cost matrices",
		}),
	}
	var err error
	if m.duration, err = shared(reg, m.duration); err != nil {
		return nil, err
	}
	if m.assignments, err = shared(reg, m.assignments); err != nil {
		return nil, err
	}
	if m.infeasible, err = shared(reg, m.infeasible); err != nil {
		return nil, err
	}
	if m.skipped, err = shared(reg, m.skipped); err != nil {
		return nil, err
	}
	if m.oracleErrors, err = shared(reg, m.oracleErrors); err != nil {
		return nil, err
	}
	return m, nil
}

// shared registers c, or returns the equal collector registered before.
func shared[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if prev, ok := are.ExistingCollector.(C); ok {
			return prev, nil
		}
	}
	return c, err
}

func (m *engineMetrics) observe(r Result) {
	if r.Skipped {
		m.skipped.WithLabelValues(r.Fleet).Inc()
		return
	}
	m.duration.WithLabelValues(r.Fleet).Observe(r.Duration.Seconds())
	m.assignments.WithLabelValues(r.Fleet).Add(float64(len(r.Pairs)))
	m.infeasible.WithLabelValues(r.Fleet).Set(float64(r.Infeasible))
}
