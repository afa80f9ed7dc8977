package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetcore/core/model"
)

func TestMemoryStore_UpdateCommits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		id := tx.NextTripID()
		return tx.PutTrip(model.Trip{ID: id, Route: []string{"A", "B"}, Status: model.TripBooked})
	}))
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		tr, err := tx.Trip(1)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, tr.Route)
		return nil
	}))
}

func TestMemoryStore_UpdateRollsBackOnError(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(tx Tx) error {
		if err := tx.PutCarrier(model.Carrier{Name: "c1"}); err != nil {
			return err
		}
		tx.NextTripID()
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		_, err := tx.Carrier("c1")
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		assert.Equal(t, int64(1), tx.NextTripID(), "sequence must roll back with the transaction")
		return nil
	}))
}

func TestMemoryStore_ViewIsReadOnly(t *testing.T) {
	s := NewMemoryStore()
	err := s.View(context.Background(), func(tx Tx) error {
		return tx.PutFleet(model.Fleet{Name: "f"})
	})
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestMemoryStore_ValuesAreCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		return tx.PutZone(model.ExclusionZone{ID: "z", Holders: []string{"c1"}})
	}))
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		z, err := tx.Zone("z")
		require.NoError(t, err)
		z.Holders[0] = "c2"
		return nil
	}))
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		z, _ := tx.Zone("z")
		assert.Equal(t, []string{"c1"}, z.Holders)
		return nil
	}))
}

func TestMemoryStore_Lookups(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx Tx) error {
		require.NoError(t, tx.PutCarrier(model.Carrier{Name: "b", Fleet: "f1"}))
		require.NoError(t, tx.PutCarrier(model.Carrier{Name: "a", Fleet: "f1"}))
		require.NoError(t, tx.PutCarrier(model.Carrier{Name: "c", Fleet: "f2"}))
		require.NoError(t, tx.PutOngoingTrip(model.OngoingTrip{TripID: 3, Carrier: "a"}))
		require.NoError(t, tx.PutPendingTrip(model.PendingTrip{TripID: 5, Fleet: "f1"}))
		require.NoError(t, tx.PutPendingTrip(model.PendingTrip{TripID: 4, Fleet: "f1"}))
		require.NoError(t, tx.PutVisa(model.VisaAssignment{Zone: "z2", Carrier: "a"}))
		require.NoError(t, tx.PutVisa(model.VisaAssignment{Zone: "z1", Carrier: "a"}))
		return nil
	}))
	require.NoError(t, s.View(ctx, func(tx Tx) error {
		cs := tx.Carriers("f1")
		require.Len(t, cs, 2)
		assert.Equal(t, "a", cs[0].Name)
		o, err := tx.OngoingTripByCarrier("a")
		require.NoError(t, err)
		assert.Equal(t, int64(3), o.TripID)
		ps := tx.PendingTrips("f1")
		require.Len(t, ps, 2)
		assert.Equal(t, int64(4), ps[0].TripID)
		vs := tx.Visas("a")
		require.Len(t, vs, 2)
		assert.Equal(t, "z1", vs[0].Zone)
		return nil
	}))
	err := s.Update(ctx, func(tx Tx) error { return tx.DeletePendingTrip(99) })
	assert.ErrorIs(t, err, ErrNotFound)
}
