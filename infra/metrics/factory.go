package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/fleetcore/core/factory"
	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
)

// influxConf is the settings block of an "influx" sink.
type influxConf struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Strict fails startup when the server is unreachable instead of
	// falling back to a NopSink.
	Strict bool `json:"strict"`
}

func newInfluxFromConf(conf map[string]any) (coremetrics.MetricsSink, error) {
	var c influxConf
	if err := factory.Decode(conf, &c); err != nil {
		return nil, err
	}
	if c.URL == "" || c.Bucket == "" {
		return nil, fmt.Errorf("url and bucket are required")
	}
	if c.Strict {
		return NewInfluxSink(c.URL, c.Token, c.Org, c.Bucket), nil
	}
	return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
}

func init() {
	for typ, f := range map[string]factory.Factory[coremetrics.MetricsSink]{
		"nop": func(map[string]any) (coremetrics.MetricsSink, error) { return coremetrics.NopSink{}, nil },
		"prometheus": func(map[string]any) (coremetrics.MetricsSink, error) {
			return NewPromSink(prometheus.DefaultRegisterer)
		},
		"influx": newInfluxFromConf,
	} {
		if err := coremetrics.RegisterMetricsSink(typ, f); err != nil {
			panic(err)
		}
	}
}
