package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/fleetcore/core/events"
	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

func TestPromSink_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	if err := sink.RecordVisa(coremetrics.VisaEvent{Carrier: "c1", Zone: "z", Result: "granted"}); err != nil {
		t.Fatalf("visa: %v", err)
	}
	_ = sink.RecordVisa(coremetrics.VisaEvent{Carrier: "c2", Zone: "z", Result: "denied"})
	_ = sink.RecordVisa(coremetrics.VisaEvent{Carrier: "c3", Zone: "z", Result: "denied"})

	expected := `
# HELP visa_requests_total Zone access decisions
# TYPE visa_requests_total counter
visa_requests_total{result="denied"} 2
visa_requests_total{result="granted"} 1
`
	if err := testutil.CollectAndCompare(sink.visas, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}

	_ = sink.RecordTripEvent(coremetrics.TripEvent{TripID: 1, Status: model.TripSucceeded})
	if v := testutil.ToFloat64(sink.trips.WithLabelValues("SUCCEEDED")); v != 1 {
		t.Errorf("trips_total = %v", v)
	}

	_ = sink.RecordCommand(coremetrics.CommandEvent{Kind: "move", Acknowledged: true, Latency: 150 * time.Millisecond})
	_ = sink.RecordCommand(coremetrics.CommandEvent{Kind: "move"})
	if v := testutil.ToFloat64(sink.commands.WithLabelValues("move", "timeout")); v != 1 {
		t.Errorf("timeouts = %v", v)
	}
	if c := testutil.CollectAndCount(sink.cmdLatency); c != 1 {
		t.Errorf("latency series = %d", c)
	}

	_ = sink.RecordDispatchCycle(coremetrics.DispatchCycle{Fleet: "f", Trips: 3, Carriers: 2})
	_ = sink.RecordDispatchCycle(coremetrics.DispatchCycle{Fleet: "f", Skipped: true})
	if v := testutil.ToFloat64(sink.pending.WithLabelValues("f")); v != 3 {
		t.Errorf("pending = %v", v)
	}
	if v := testutil.ToFloat64(sink.cycles.WithLabelValues("f", "true")); v != 1 {
		t.Errorf("skipped cycles = %v", v)
	}
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	_ = a.RecordVisa(coremetrics.VisaEvent{Result: "released"})
	if v := testutil.ToFloat64(b.visas.WithLabelValues("released")); v != 1 {
		t.Errorf("collectors not shared, got %v", v)
	}
}

func TestEventCollectorCountsDisconnects(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSink(reg)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		bus.Publish(events.CarrierDisconnected{Carrier: "c1", Fleet: "f"})
		if testutil.ToFloat64(sink.disconnects.WithLabelValues("f")) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("disconnect not counted")
}

func TestStartPromServerStopsWithContext(t *testing.T) {
	reg := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StartPromServer(ctx, "127.0.0.1:0", reg) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server error: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not stop")
	}
}
