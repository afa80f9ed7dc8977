package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreQueries(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cycles.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	now := time.Now()
	for _, rec := range []LogRecord{
		{Timestamp: now, Fleet: "f", Trips: []int64{1}, Carriers: []string{"c1"}, Pairs: []Pair{{TripID: 1, Carrier: "c1", Cost: 2}}},
		{Timestamp: now.Add(time.Second), Fleet: "g", Carriers: []string{"c2"}},
		{Timestamp: now.Add(2 * time.Second), Fleet: "f", Pairs: []Pair{{TripID: 5, Carrier: "c2"}}},
	} {
		require.NoError(t, store.Append(ctx, rec))
	}

	out, err := store.Query(ctx, LogQuery{Carrier: "c1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1), out[0].Pairs[0].TripID)

	out, err = store.Query(ctx, LogQuery{Carrier: "c2", Fleet: "f"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(5), out[0].Pairs[0].TripID)

	out, err = store.Query(ctx, LogQuery{Start: now.Add(500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Len(t, out, 2)
	assert.Equal(t, "g", out[0].Fleet)
}

func TestSQLiteStorePrune(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cycles.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.Append(ctx, LogRecord{Timestamp: now.Add(-48 * time.Hour), Fleet: "f", Carriers: []string{"c1"}}))
	require.NoError(t, store.Append(ctx, LogRecord{Timestamp: now, Fleet: "f", Carriers: []string{"c1"}}))

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	out, err := store.Query(ctx, LogQuery{Carrier: "c1"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
