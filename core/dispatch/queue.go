package dispatch

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
)

// minWait is the floor applied to waiting times before scaling priorities.
const minWait = time.Second

// sherpa is one carrier column of the cost matrix.
type sherpa struct {
	Name         string
	Pose         model.Pose
	RemainingETA float64
	Excluded     map[string]bool
	ParkingMode  bool
}

// pickup is one trip row of the cost matrix.
type pickup struct {
	TripID     int64
	Pose       model.Pose
	Priority   float64
	BookedBy   string
	Route      []string
	Pinned     string
	ParkingFor string
	Wait       time.Duration
	Hint       string
}

// snapshot is everything a cycle needs, read in one transaction.
type snapshot struct {
	Fleet    model.Fleet
	Sherpas  []sherpa
	Pickups  []pickup
	Problems []error
}

func (e *Engine) snapshot(tx store.Tx, fleet string, now time.Time) (snapshot, error) {
	f, err := tx.Fleet(fleet)
	if err != nil {
		return snapshot{}, err
	}
	snap := snapshot{Fleet: f}
	for _, c := range tx.Carriers(fleet) {
		s, ok, err := e.sherpa(tx, c)
		if err != nil {
			snap.Problems = append(snap.Problems, err)
			continue
		}
		if ok {
			snap.Sherpas = append(snap.Sherpas, s)
		}
	}
	for _, pt := range tx.PendingTrips(fleet) {
		p, ok, err := pickupFor(tx, pt, now)
		if err != nil {
			snap.Problems = append(snap.Problems, err)
			continue
		}
		if ok {
			snap.Pickups = append(snap.Pickups, p)
		}
	}
	slices.SortFunc(snap.Sherpas, func(a, b sherpa) int { return cmp.Compare(a.Name, b.Name) })
	slices.SortFunc(snap.Pickups, func(a, b pickup) int { return cmp.Compare(a.TripID, b.TripID) })
	return snap, nil
}

// sherpa builds the queue entry of c; ok is false when c cannot be matched.
func (e *Engine) sherpa(tx store.Tx, c model.Carrier) (sherpa, bool, error) {
	s := sherpa{
		Name:        c.Name,
		Pose:        c.Pose,
		ParkingMode: c.ParkingMode,
		Excluded:    make(map[string]bool, len(c.ExcludedStations)),
	}
	for _, st := range c.ExcludedStations {
		s.Excluded[st] = true
	}
	if c.Available() {
		return s, true, nil
	}
	if !e.cfg.IncludeBusyCarriers || !c.Schedulable() {
		return s, false, nil
	}
	ot, err := tx.OngoingTripByCarrier(c.Name)
	if err != nil {
		return s, false, fmt.Errorf("carrier %s: %w", c.Name, err)
	}
	tr, err := tx.Trip(ot.TripID)
	if err != nil {
		return s, false, fmt.Errorf("carrier %s: %w", c.Name, err)
	}
	if len(tr.AugmentedRoute) == 0 {
		return s, false, nil
	}
	last, err := tx.Station(tr.AugmentedRoute[len(tr.AugmentedRoute)-1])
	if err != nil {
		return s, false, fmt.Errorf("carrier %s: %w", c.Name, err)
	}
	s.Pose = last.Pose
	for i := max(ot.NextIdx, 0); i < len(tr.ETAs); i++ {
		s.RemainingETA += tr.ETAs[i]
	}
	return s, true, nil
}

// pickupFor builds the queue entry of pt; ok is false for scheduled trips not
// yet due.
func pickupFor(tx store.Tx, pt model.PendingTrip, now time.Time) (pickup, bool, error) {
	tr, err := tx.Trip(pt.TripID)
	if err != nil {
		return pickup{}, false, fmt.Errorf("pending trip %d: %w", pt.TripID, err)
	}
	if s := tr.Metadata[model.MetaScheduledStart]; s != "" {
		at, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return pickup{}, false, fmt.Errorf("trip %d: %w", tr.ID, err)
		}
		if now.Before(at) {
			return pickup{}, false, nil
		}
	}
	route := tr.AugmentedRoute
	if len(route) == 0 {
		route = tr.Route
	}
	if len(route) == 0 {
		return pickup{}, false, fmt.Errorf("trip %d has an empty route", tr.ID)
	}
	first, err := tx.Station(route[0])
	if err != nil {
		return pickup{}, false, fmt.Errorf("trip %d: %w", tr.ID, err)
	}
	prio := tr.Priority
	if prio <= 0 {
		prio = 1
	}
	return pickup{
		TripID:     tr.ID,
		Pose:       first.Pose,
		Priority:   prio,
		BookedBy:   tr.BookedBy,
		Route:      slices.Clone(route),
		Pinned:     tr.Metadata[model.MetaCarrier],
		ParkingFor: tr.Metadata[model.MetaParkingFor],
		Wait:       now.Sub(tr.BookedAt),
		Hint:       pt.Carrier,
	}, true, nil
}

// scaledPriorities applies the waiting-time factor.
func scaledPriorities(ps []pickup, waiting bool) []float64 {
	out := make([]float64, len(ps))
	if !waiting {
		for i, p := range ps {
			out[i] = p.Priority
		}
		return out
	}
	least := time.Duration(math.MaxInt64)
	for _, p := range ps {
		least = min(least, max(p.Wait, minWait))
	}
	for i, p := range ps {
		out[i] = p.Priority * float64(max(p.Wait, minWait)) / float64(least)
	}
	return out
}

// feasible applies the exclusion rules of a single cell.
func feasible(f model.Fleet, p pickup, s sherpa, col, maxCols int) bool {
	if maxCols > 0 && col >= maxCols {
		return false
	}
	ownParking := p.ParkingFor == s.Name
	switch f.Status {
	case model.FleetMaintenance:
		return false
	case model.FleetStopped:
		if !ownParking {
			return false
		}
	}
	if s.ParkingMode && !ownParking {
		return false
	}
	if p.ParkingFor != "" && !ownParking {
		return false
	}
	if p.Pinned != "" && p.Pinned != s.Name {
		return false
	}
	for _, st := range p.Route {
		if s.Excluded[st] {
			return false
		}
	}
	return true
}
