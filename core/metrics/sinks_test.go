package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetcore/core/factory"
	"github.com/kilianp07/fleetcore/core/metrics"
	_ "github.com/kilianp07/fleetcore/infra/metrics"
)

func TestNewMetricsSink(t *testing.T) {
	s, err := metrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, metrics.NopSink{}, s)

	s, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	require.IsType(t, &metrics.MultiSink{}, s)
	assert.Len(t, s.(*metrics.MultiSink).Sinks, 2)

	_, err = metrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "statsd"}})
	assert.ErrorIs(t, err, factory.ErrUnknownType)
}

func TestConfigFromYAML(t *testing.T) {
	var cfg metrics.Config
	require.NoError(t, yaml.Unmarshal([]byte("sinks:\n  - type: prometheus\n  - type: nop\n"), &cfg))
	assert.True(t, cfg.Uses("prometheus"))
	assert.False(t, cfg.Uses("influx"))
	assert.Contains(t, metrics.SinkTypes(), "influx")
}
