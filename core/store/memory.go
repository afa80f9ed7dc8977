package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/kilianp07/fleetcore/core/model"
)

type visaKey struct{ zone, carrier string }

type tables struct {
	fleets   map[string]model.Fleet
	stations map[string]model.Station
	carriers map[string]model.Carrier
	statuses map[string]model.CarrierStatus
	trips    map[int64]model.Trip
	legs     map[int64]model.TripLeg
	pending  map[int64]model.PendingTrip
	ongoing  map[int64]model.OngoingTrip
	zones    map[string]model.ExclusionZone
	visas    map[visaKey]model.VisaAssignment
	tripSeq  int64
	legSeq   int64
}

// MemoryStore keeps the arena in memory. Writers are serialised and work on
// copy-on-write tables swapped in atomically on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *tables
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &tables{
		fleets:   map[string]model.Fleet{},
		stations: map[string]model.Station{},
		carriers: map[string]model.Carrier{},
		statuses: map[string]model.CarrierStatus{},
		trips:    map[int64]model.Trip{},
		legs:     map[int64]model.TripLeg{},
		pending:  map[int64]model.PendingTrip{},
		ongoing:  map[int64]model.OngoingTrip{},
		zones:    map[string]model.ExclusionZone{},
		visas:    map[visaKey]model.VisaAssignment{},
	}}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.state
	tx := &memTx{t: &cp, owned: map[string]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.t
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&memTx{t: s.state, readOnly: true})
}

type memTx struct {
	t        *tables
	owned    map[string]bool
	readOnly bool
}

// own clones a table the first time the transaction writes to it.
func own[K comparable, V any](tx *memTx, name string, m *map[K]V) error {
	if tx.readOnly {
		return ErrReadOnly
	}
	if !tx.owned[name] {
		*m = maps.Clone(*m)
		tx.owned[name] = true
	}
	return nil
}

func sortedValues[K cmp.Ordered, V any](m map[K]V, keep func(V) bool) []V {
	keys := slices.Sorted(maps.Keys(m))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		if v := m[k]; keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func notFound(kind string, key any) error {
	return fmt.Errorf("%s %v: %w", kind, key, ErrNotFound)
}

func (tx *memTx) Fleet(name string) (model.Fleet, error) {
	f, ok := tx.t.fleets[name]
	if !ok {
		return f, notFound("fleet", name)
	}
	return f, nil
}

func (tx *memTx) Fleets() []model.Fleet { return sortedValues(tx.t.fleets, nil) }

func (tx *memTx) PutFleet(f model.Fleet) error {
	if err := own(tx, "fleets", &tx.t.fleets); err != nil {
		return err
	}
	tx.t.fleets[f.Name] = f
	return nil
}

func (tx *memTx) Station(name string) (model.Station, error) {
	st, ok := tx.t.stations[name]
	if !ok {
		return st, notFound("station", name)
	}
	return st.Clone(), nil
}

func (tx *memTx) Stations(fleet string) []model.Station {
	out := sortedValues(tx.t.stations, func(s model.Station) bool { return fleet == "" || s.Fleet == fleet })
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

func (tx *memTx) PutStation(st model.Station) error {
	if err := own(tx, "stations", &tx.t.stations); err != nil {
		return err
	}
	tx.t.stations[st.Name] = st.Clone()
	return nil
}

func (tx *memTx) Carrier(name string) (model.Carrier, error) {
	c, ok := tx.t.carriers[name]
	if !ok {
		return c, notFound("carrier", name)
	}
	return c.Clone(), nil
}

func (tx *memTx) Carriers(fleet string) []model.Carrier {
	out := sortedValues(tx.t.carriers, func(c model.Carrier) bool { return fleet == "" || c.Fleet == fleet })
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

func (tx *memTx) PutCarrier(c model.Carrier) error {
	if err := own(tx, "carriers", &tx.t.carriers); err != nil {
		return err
	}
	tx.t.carriers[c.Name] = c.Clone()
	return nil
}

func (tx *memTx) CarrierStatus(name string) (model.CarrierStatus, error) {
	st, ok := tx.t.statuses[name]
	if !ok {
		return st, notFound("carrier status", name)
	}
	return st, nil
}

func (tx *memTx) PutCarrierStatus(st model.CarrierStatus) error {
	if err := own(tx, "statuses", &tx.t.statuses); err != nil {
		return err
	}
	tx.t.statuses[st.Carrier] = st
	return nil
}

func (tx *memTx) Trip(id int64) (model.Trip, error) {
	t, ok := tx.t.trips[id]
	if !ok {
		return t, notFound("trip", id)
	}
	return t.Clone(), nil
}

func (tx *memTx) TripByBooking(bookingID string) (model.Trip, error) {
	for _, t := range tx.t.trips {
		if bookingID != "" && t.BookingID == bookingID {
			return t.Clone(), nil
		}
	}
	return model.Trip{}, notFound("booking", bookingID)
}

func (tx *memTx) PutTrip(t model.Trip) error {
	if err := own(tx, "trips", &tx.t.trips); err != nil {
		return err
	}
	tx.t.trips[t.ID] = t.Clone()
	return nil
}

func (tx *memTx) NextTripID() int64 {
	if tx.readOnly {
		return 0
	}
	tx.t.tripSeq++
	return tx.t.tripSeq
}

func (tx *memTx) TripLeg(id int64) (model.TripLeg, error) {
	l, ok := tx.t.legs[id]
	if !ok {
		return l, notFound("trip leg", id)
	}
	return l, nil
}

func (tx *memTx) PutTripLeg(l model.TripLeg) error {
	if err := own(tx, "legs", &tx.t.legs); err != nil {
		return err
	}
	tx.t.legs[l.ID] = l
	return nil
}

func (tx *memTx) NextTripLegID() int64 {
	if tx.readOnly {
		return 0
	}
	tx.t.legSeq++
	return tx.t.legSeq
}

func (tx *memTx) PendingTrip(tripID int64) (model.PendingTrip, error) {
	p, ok := tx.t.pending[tripID]
	if !ok {
		return p, notFound("pending trip", tripID)
	}
	return p, nil
}

func (tx *memTx) PendingTrips(fleet string) []model.PendingTrip {
	return sortedValues(tx.t.pending, func(p model.PendingTrip) bool { return fleet == "" || p.Fleet == fleet })
}

func (tx *memTx) PutPendingTrip(p model.PendingTrip) error {
	if err := own(tx, "pending", &tx.t.pending); err != nil {
		return err
	}
	tx.t.pending[p.TripID] = p
	return nil
}

func (tx *memTx) DeletePendingTrip(tripID int64) error {
	if _, ok := tx.t.pending[tripID]; !ok {
		return notFound("pending trip", tripID)
	}
	if err := own(tx, "pending", &tx.t.pending); err != nil {
		return err
	}
	delete(tx.t.pending, tripID)
	return nil
}

func (tx *memTx) OngoingTrip(tripID int64) (model.OngoingTrip, error) {
	o, ok := tx.t.ongoing[tripID]
	if !ok {
		return o, notFound("ongoing trip", tripID)
	}
	return o, nil
}

func (tx *memTx) OngoingTripByCarrier(carrier string) (model.OngoingTrip, error) {
	for _, o := range tx.t.ongoing {
		if o.Carrier == carrier {
			return o, nil
		}
	}
	return model.OngoingTrip{}, notFound("ongoing trip of carrier", carrier)
}

func (tx *memTx) PutOngoingTrip(o model.OngoingTrip) error {
	if err := own(tx, "ongoing", &tx.t.ongoing); err != nil {
		return err
	}
	tx.t.ongoing[o.TripID] = o
	return nil
}

func (tx *memTx) DeleteOngoingTrip(tripID int64) error {
	if _, ok := tx.t.ongoing[tripID]; !ok {
		return notFound("ongoing trip", tripID)
	}
	if err := own(tx, "ongoing", &tx.t.ongoing); err != nil {
		return err
	}
	delete(tx.t.ongoing, tripID)
	return nil
}

func (tx *memTx) Zone(id string) (model.ExclusionZone, error) {
	z, ok := tx.t.zones[id]
	if !ok {
		return z, notFound("zone", id)
	}
	return z.Clone(), nil
}

func (tx *memTx) Zones() []model.ExclusionZone {
	out := sortedValues(tx.t.zones, nil)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

func (tx *memTx) PutZone(z model.ExclusionZone) error {
	if err := own(tx, "zones", &tx.t.zones); err != nil {
		return err
	}
	tx.t.zones[z.ID] = z.Clone()
	return nil
}

func (tx *memTx) Visa(zone, carrier string) (model.VisaAssignment, error) {
	v, ok := tx.t.visas[visaKey{zone, carrier}]
	if !ok {
		return v, notFound("visa", zone+"/"+carrier)
	}
	return v, nil
}

func (tx *memTx) Visas(carrier string) []model.VisaAssignment {
	var out []model.VisaAssignment
	for k, v := range tx.t.visas {
		if carrier == "" || k.carrier == carrier {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b model.VisaAssignment) int {
		if c := cmp.Compare(a.Zone, b.Zone); c != 0 {
			return c
		}
		return cmp.Compare(a.Carrier, b.Carrier)
	})
	return out
}

func (tx *memTx) PutVisa(v model.VisaAssignment) error {
	if err := own(tx, "visas", &tx.t.visas); err != nil {
		return err
	}
	tx.t.visas[visaKey{v.Zone, v.Carrier}] = v
	return nil
}

func (tx *memTx) DeleteVisa(zone, carrier string) error {
	k := visaKey{zone, carrier}
	if _, ok := tx.t.visas[k]; !ok {
		return notFound("visa", zone+"/"+carrier)
	}
	if err := own(tx, "visas", &tx.t.visas); err != nil {
		return err
	}
	delete(tx.t.visas, k)
	return nil
}
