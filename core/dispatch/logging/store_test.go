package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/factory"
)

func TestLogQueryMatch(t *testing.T) {
	now := time.Now()
	rec := LogRecord{Timestamp: now, Fleet: "f", Carriers: []string{"c1"}, Pairs: []Pair{{TripID: 4, Carrier: "c2"}}}
	tests := map[string]struct {
		q    LogQuery
		want bool
	}{
		"empty":           {LogQuery{}, true},
		"fleet":           {LogQuery{Fleet: "f"}, true},
		"other fleet":     {LogQuery{Fleet: "g"}, false},
		"paired carrier":  {LogQuery{Carrier: "c2"}, true},
		"unknown carrier": {LogQuery{Carrier: "c3"}, false},
		"after":           {LogQuery{Start: now.Add(time.Second)}, false},
		"before":          {LogQuery{End: now.Add(-time.Second)}, false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.q.Match(rec))
		})
	}
}

func TestNewLogStore(t *testing.T) {
	s, err := NewLogStore(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	s, err = NewLogStore(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": path}})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Append(context.Background(), LogRecord{Timestamp: time.Now(), Fleet: "f"}))
	out, err := s.Query(context.Background(), LogQuery{Fleet: "f"})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	_, err = NewLogStore(factory.ModuleConfig{Type: "missing"})
	assert.ErrorIs(t, err, factory.ErrUnknownType)
	_, err = NewLogStore(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{}})
	assert.ErrorContains(t, err, "path is required")
	assert.Contains(t, Backends(), "jsonl_rotating")
}

func TestSQLiteStorePrunesOnOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), LogRecord{Timestamp: time.Now().AddDate(0, 0, -10), Fleet: "f"}))
	require.NoError(t, s.Close())

	store, err := NewLogStore(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": path, "max_age_days": 7}})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	out, err := store.Query(context.Background(), LogQuery{})
	require.NoError(t, err)
	assert.Empty(t, out)
}
