package logging

import (
	"context"
	"slices"
	"time"
)

// Pair is one trip to carrier match of a dispatch cycle.
type Pair struct {
	TripID  int64   `json:"trip_id"`
	Carrier string  `json:"carrier"`
	Cost    float64 `json:"cost"`
}

// LogRecord captures one dispatch cycle over a fleet.
type LogRecord struct {
	Timestamp  time.Time         `json:"timestamp"`
	Fleet      string            `json:"fleet"`
	Trips      []int64           `json:"trips"`
	Carriers   []string          `json:"carriers"`
	Pairs      []Pair            `json:"pairs"`
	Infeasible int               `json:"infeasible"`
	Errors     map[string]string `json:"errors,omitempty"`
	DurationMS float64           `json:"duration_ms"`
}

// Involves reports whether carrier was considered or matched in the cycle.
func (r LogRecord) Involves(carrier string) bool {
	if slices.Contains(r.Carriers, carrier) {
		return true
	}
	return slices.ContainsFunc(r.Pairs, func(p Pair) bool { return p.Carrier == carrier })
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start   time.Time
	End     time.Time
	Fleet   string
	Carrier string
}

// Match reports whether r passes every filter of q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Fleet != "" && r.Fleet != q.Fleet {
		return false
	}
	if q.Carrier != "" && !r.Involves(q.Carrier) {
		return false
	}
	return true
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, LogRecord) error              { return nil }
func (NopStore) Query(context.Context, LogQuery) ([]LogRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }
