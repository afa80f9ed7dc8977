package logging

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingJSONLStoreRotatesAndQueriesBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cycles.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 5, 0)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	// Large enough records to pass the 1 MB limit.
	carriers := make([]string, 2000)
	for i := range carriers {
		carriers[i] = "carrier-" + strings.Repeat("x", 40)
	}
	start := time.Now()
	for i := 0; i < 20; i++ {
		rec := LogRecord{Timestamp: start.Add(time.Duration(i) * time.Second), Fleet: "f", Carriers: carriers}
		require.NoError(t, store.Append(ctx, rec))
	}
	backups, err := store.backups()
	require.NoError(t, err)
	assert.NotEmpty(t, backups)

	out, err := store.Query(ctx, LogQuery{Fleet: "f"})
	require.NoError(t, err)
	require.Len(t, out, 20)
	assert.True(t, out[0].Timestamp.Equal(start))
}

func TestRotatingJSONLStoreCarrierFilter(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "cycles.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Append(ctx, LogRecord{Timestamp: now, Fleet: "f", Pairs: []Pair{{TripID: 1, Carrier: "c1"}}}))
	require.NoError(t, store.Append(ctx, LogRecord{Timestamp: now, Fleet: "g", Carriers: []string{"c9"}}))

	out, err := store.Query(ctx, LogQuery{Carrier: "c1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "f", out[0].Fleet)
}
