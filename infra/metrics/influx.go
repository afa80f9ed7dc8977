package metrics

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/fleetcore/core/metrics"
	"github.com/kilianp07/fleetcore/infra/logger"
)

const influxTimeout = 5 * time.Second

// InfluxSink writes fleet analytics as InfluxDB points. Writes are blocking
// and bounded by a five second timeout.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink targets bucket of org on the server at url. A url ending in
// the write endpoint path is accepted.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	opts := influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: influxTimeout})
	client := influxdb2.NewClientWithOptions(strings.TrimSuffix(url, "/api/v2/write"), token, opts)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback returns a NopSink when the server does not pass
// its health check, so an absent analytics database never stops dispatch.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	if err := sink.ping(); err != nil {
		sink.log.Errorf("influx unavailable, analytics disabled: %v", err)
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	h, err := s.client.Health(ctx)
	if err != nil {
		return err
	}
	if h.Status != "pass" {
		return fmt.Errorf("health status %s", h.Status)
	}
	return nil
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordDispatchCycle writes the summary of a dispatch cycle. Skipped cycles
// are not written.
func (s *InfluxSink) RecordDispatchCycle(c coremetrics.DispatchCycle) error {
	if c.Skipped {
		return nil
	}
	return s.write(write.NewPointWithMeasurement("dispatch_cycle").
		AddTag("fleet", c.Fleet).
		AddTag("component", "dispatch_engine").
		AddField("trips", c.Trips).
		AddField("carriers", c.Carriers).
		AddField("assignments", c.Assignments).
		AddField("infeasible", c.Infeasible).
		AddField("errors", c.Errors).
		AddField("duration_ms", round3(c.Duration.Seconds()*1000)).
		SetTime(c.Time))
}

// RecordTripEvent writes a trip status transition.
func (s *InfluxSink) RecordTripEvent(ev coremetrics.TripEvent) error {
	p := write.NewPointWithMeasurement("trip_event").
		AddTag("fleet", ev.Fleet).
		AddTag("status", string(ev.Status)).
		AddTag("trip_id", strconv.FormatInt(ev.TripID, 10))
	if ev.Carrier != "" {
		p = p.AddTag("carrier", ev.Carrier)
	}
	return s.write(p.AddField("progress", round3(ev.Progress)).SetTime(ev.Time))
}

// RecordLegStatus writes a movement report of an open leg.
func (s *InfluxSink) RecordLegStatus(ev coremetrics.LegStatusEvent) error {
	p := write.NewPointWithMeasurement("trip_leg_status").
		AddTag("fleet", ev.Fleet).
		AddTag("carrier", ev.Carrier).
		AddTag("trip_id", strconv.FormatInt(ev.TripID, 10)).
		AddTag("leg_id", strconv.FormatInt(ev.LegID, 10)).
		AddTag("from", ev.From).
		AddTag("to", ev.To).
		AddTag("status", string(ev.Status)).
		AddField("eta", round3(ev.ETA))
	if ev.StoppageReason != "" {
		p = p.AddField("stoppage_reason", ev.StoppageReason)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordCommand writes the outcome of a carrier command.
func (s *InfluxSink) RecordCommand(ev coremetrics.CommandEvent) error {
	return s.write(write.NewPointWithMeasurement("carrier_command").
		AddTag("carrier", ev.Carrier).
		AddTag("kind", ev.Kind).
		AddTag("acknowledged", strconv.FormatBool(ev.Acknowledged)).
		AddTag("command_id", ev.CommandID).
		AddField("latency_ms", round3(ev.Latency.Seconds()*1000)).
		SetTime(ev.Time))
}

// RecordVisa writes a zone access decision.
func (s *InfluxSink) RecordVisa(ev coremetrics.VisaEvent) error {
	return s.write(write.NewPointWithMeasurement("zone_visa").
		AddTag("zone", ev.Zone).
		AddTag("carrier", ev.Carrier).
		AddTag("result", ev.Result).
		AddField("count", 1).
		SetTime(ev.Time))
}

// RecordCarrierEvent writes a disconnection or assignment of a carrier.
func (s *InfluxSink) RecordCarrierEvent(ev coremetrics.CarrierEvent) error {
	return s.write(write.NewPointWithMeasurement("carrier_event").
		AddTag("fleet", ev.Fleet).
		AddTag("carrier", ev.Carrier).
		AddTag("event", ev.Event).
		AddField("count", 1).
		SetTime(ev.Time))
}

// Close releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
