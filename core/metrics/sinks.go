package metrics

import (
	"slices"

	"github.com/kilianp07/fleetcore/core/factory"
)

// Config selects the analytics sinks. PrometheusPort, when set, serves the
// default Prometheus registry on /metrics.
type Config struct {
	Sinks          []factory.ModuleConfig `json:"sinks"`
	PrometheusPort string                 `json:"prometheus_port"`
}

// Uses reports whether a sink of type typ is configured.
func (c Config) Uses(typ string) bool {
	return slices.ContainsFunc(c.Sinks, func(m factory.ModuleConfig) bool { return m.Type == typ })
}

var sinks = factory.NewRegistry[MetricsSink]("metrics sink")

// RegisterMetricsSink makes a sink type available to NewMetricsSink.
func RegisterMetricsSink(typ string, f factory.Factory[MetricsSink]) error {
	return sinks.Register(typ, f)
}

// SinkTypes lists the registered sink types.
func SinkTypes() []string { return sinks.Types() }

// NewMetricsSink builds the configured sinks. Nothing configured yields a
// NopSink and several sinks are combined into a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	built, err := sinks.CreateAll(cfgs)
	if err != nil {
		return nil, err
	}
	switch len(built) {
	case 0:
		return NopSink{}, nil
	case 1:
		return built[0], nil
	}
	return NewMultiSink(built...), nil
}
