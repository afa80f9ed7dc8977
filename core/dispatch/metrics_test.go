package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/dispatch/logging"
)

func TestEngineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newEngineMetrics(reg)
	require.NoError(t, err)

	m.observe(Result{Fleet: "f", Pairs: []logging.Pair{{TripID: 1}, {TripID: 2}}, Infeasible: 3, Duration: 20 * time.Millisecond})
	m.observe(Result{Fleet: "f", Skipped: true})
	m.oracleErrors.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.assignments.WithLabelValues("f")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.infeasible.WithLabelValues("f")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("f")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))

	n, err := testutil.GatherAndCount(reg,
		"dispatch_cycle_duration_seconds",
		"dispatch_assignments_total",
		"dispatch_infeasible_cells",
		"dispatch_cycles_skipped_total",
		"dispatch_oracle_errors_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestEngineMetricsShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := newEngineMetrics(reg)
	require.NoError(t, err)
	b, err := newEngineMetrics(reg)
	require.NoError(t, err)
	a.oracleErrors.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(b.oracleErrors))
}
