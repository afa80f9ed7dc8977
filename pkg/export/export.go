// Package export renders recorded dispatch cycles for operators.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/fleetcore/core/dispatch/logging"
)

// WriteJSON writes the records to w as an indented JSON array.
func WriteJSON(w io.Writer, recs []logging.LogRecord) error {
	if recs == nil {
		recs = []logging.LogRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// WriteCSV writes one row per matched pair. Cycles without a match get a
// single row with empty pair columns.
func WriteCSV(w io.Writer, recs []logging.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "fleet", "trips", "carriers", "infeasible", "trip_id", "carrier", "cost"}); err != nil {
		return err
	}
	for _, r := range recs {
		head := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Fleet,
			strconv.Itoa(len(r.Trips)),
			strconv.Itoa(len(r.Carriers)),
			strconv.Itoa(r.Infeasible),
		}
		if len(r.Pairs) == 0 {
			if err := cw.Write(append(head, "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, p := range r.Pairs {
			row := append(slices.Clone(head),
				strconv.FormatInt(p.TripID, 10),
				p.Carrier,
				strconv.FormatFloat(p.Cost, 'f', -1, 64),
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChart renders an HTML line chart of pending trips, available
// carriers and assignments per cycle.
func WriteChart(w io.Writer, recs []logging.LogRecord) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Dispatch cycles"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)
	var (
		xAxis    []string
		trips    []opts.LineData
		carriers []opts.LineData
		pairs    []opts.LineData
	)
	for _, r := range recs {
		label := r.Timestamp.Format("2006-01-02 15:04:05")
		if r.Fleet != "" {
			label += " " + r.Fleet
		}
		xAxis = append(xAxis, label)
		trips = append(trips, opts.LineData{Value: len(r.Trips)})
		carriers = append(carriers, opts.LineData{Value: len(r.Carriers)})
		pairs = append(pairs, opts.LineData{Value: len(r.Pairs)})
	}
	line.SetXAxis(xAxis).
		AddSeries("Pending trips", trips).
		AddSeries("Available carriers", carriers).
		AddSeries("Assignments", pairs)
	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
