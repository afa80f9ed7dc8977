package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/fleetcore/core/events"
	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// StartEventCollector records carrier events that only travel on the bus:
// heartbeat losses and dispatch assignments. It stops with ctx.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	record := func(carrier, fleet, event string) {
		_ = coremetrics.RecordCarrier(sink, coremetrics.CarrierEvent{
			Carrier: carrier, Fleet: fleet, Event: event, Time: time.Now(),
		})
	}
	eventbus.On(ctx, bus, func(e events.CarrierDisconnected) { record(e.Carrier, e.Fleet, "disconnected") })
	eventbus.On(ctx, bus, func(e events.AssignmentEvent) { record(e.Carrier, e.Fleet, "assigned") })
}
