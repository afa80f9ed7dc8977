// Package zone serialises carrier access to shared physical areas. Access is
// granted as visas; linked gates are locked and released as one group.
package zone

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/store"
)

// ErrNotHolder is returned when releasing a zone the carrier does not hold.
var ErrNotHolder = errors.New("carrier does not hold the zone")

// CanLock reports whether carrier may take zone in the requested mode, and
// why not.
func CanLock(z model.ExclusionZone, carrier string, exclusive bool) (bool, string) {
	if len(z.Holders) == 0 {
		return true, ""
	}
	if len(z.Holders) == 1 && z.Holders[0] == carrier {
		return true, ""
	}
	others := slices.DeleteFunc(slices.Clone(z.Holders), func(h string) bool { return h == carrier })
	if z.Exclusive {
		return false, fmt.Sprintf("zone %s is held exclusively by %s", z.ID, strings.Join(others, ","))
	}
	if exclusive {
		return false, fmt.Sprintf("zone %s is held by %s", z.ID, strings.Join(others, ","))
	}
	return true, ""
}

// Group returns the zone and every zone reachable through linked gates, in
// id order. Links are followed in both directions.
func Group(tx store.Tx, id string) ([]model.ExclusionZone, error) {
	root, err := tx.Zone(id)
	if err != nil {
		return nil, err
	}
	if len(root.LinkedGates) == 0 && !linkedFromAny(tx, id) {
		return []model.ExclusionZone{root}, nil
	}
	all := tx.Zones()
	back := make(map[string][]string)
	for _, z := range all {
		for _, g := range z.LinkedGates {
			back[g] = append(back[g], z.ID)
		}
	}
	seen := map[string]model.ExclusionZone{root.ID: root}
	queue := []model.ExclusionZone{root}
	for len(queue) > 0 {
		z := queue[0]
		queue = queue[1:]
		for _, next := range append(slices.Clone(z.LinkedGates), back[z.ID]...) {
			if _, ok := seen[next]; ok {
				continue
			}
			nz, err := tx.Zone(next)
			if err != nil {
				return nil, fmt.Errorf("linked gate of %s: %w", z.ID, err)
			}
			seen[next] = nz
			queue = append(queue, nz)
		}
	}
	out := make([]model.ExclusionZone, 0, len(seen))
	for _, z := range seen {
		out = append(out, z)
	}
	slices.SortFunc(out, func(a, b model.ExclusionZone) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func linkedFromAny(tx store.Tx, id string) bool {
	for _, z := range tx.Zones() {
		if slices.Contains(z.LinkedGates, id) {
			return true
		}
	}
	return false
}

// Decision is the answer to a lock request.
type Decision struct {
	Granted bool     `json:"granted"`
	Reason  string   `json:"reason,omitempty"`
	Zones   []string `json:"zones"`
}

// LockTx locks zone id and its linked gates for carrier. Every zone of the
// group must pass CanLock or none is touched; a denied carrier is queued on
// the requested zone.
func LockTx(tx store.Tx, id, carrier string, exclusive bool, now time.Time) (Decision, error) {
	group, err := Group(tx, id)
	if err != nil {
		return Decision{}, err
	}
	d := Decision{Zones: ids(group)}
	for _, z := range group {
		if ok, reason := CanLock(z, carrier, exclusive); !ok {
			d.Reason = reason
			req, err := tx.Zone(id)
			if err != nil {
				return d, err
			}
			if !slices.Contains(req.Waiting, carrier) {
				req.Waiting = append(req.Waiting, carrier)
				if err := tx.PutZone(req); err != nil {
					return d, err
				}
			}
			return d, nil
		}
	}
	for _, z := range group {
		if !z.HeldBy(carrier) {
			z.Holders = append(z.Holders, carrier)
		}
		if exclusive {
			z.Exclusive = true
		}
		z.Waiting = slices.DeleteFunc(z.Waiting, func(w string) bool { return w == carrier })
		if err := tx.PutZone(z); err != nil {
			return d, err
		}
		if err := tx.PutVisa(model.VisaAssignment{Zone: z.ID, Carrier: carrier, Exclusive: z.Exclusive, GrantedAt: now}); err != nil {
			return d, err
		}
	}
	d.Granted = true
	return d, nil
}

// UnlockTx releases zone id and the linked gates held by carrier. Releasing a
// zone the carrier does not hold is an error.
func UnlockTx(tx store.Tx, id, carrier string) ([]string, error) {
	z, err := tx.Zone(id)
	if err != nil {
		return nil, err
	}
	if !z.HeldBy(carrier) {
		return nil, fmt.Errorf("zone %s, carrier %s: %w", id, carrier, ErrNotHolder)
	}
	group, err := Group(tx, id)
	if err != nil {
		return nil, err
	}
	var released []string
	for _, z := range group {
		if !z.HeldBy(carrier) {
			continue
		}
		z.Holders = slices.DeleteFunc(z.Holders, func(h string) bool { return h == carrier })
		if len(z.Holders) == 0 {
			z.Exclusive = false
		}
		if err := tx.PutZone(z); err != nil {
			return released, err
		}
		if err := tx.DeleteVisa(z.ID, carrier); err != nil && !errors.Is(err, store.ErrNotFound) {
			return released, err
		}
		released = append(released, z.ID)
	}
	return released, nil
}

// ReleaseAllTx drops every visa of carrier and removes it from all waiting
// lists.
func ReleaseAllTx(tx store.Tx, carrier string) ([]string, error) {
	var released []string
	for _, v := range tx.Visas(carrier) {
		z, err := tx.Zone(v.Zone)
		if err != nil {
			return released, err
		}
		if !z.HeldBy(carrier) {
			continue
		}
		ids, err := UnlockTx(tx, v.Zone, carrier)
		if err != nil {
			return released, err
		}
		released = append(released, ids...)
	}
	for _, z := range tx.Zones() {
		if !slices.Contains(z.Waiting, carrier) {
			continue
		}
		z.Waiting = slices.DeleteFunc(z.Waiting, func(w string) bool { return w == carrier })
		if err := tx.PutZone(z); err != nil {
			return released, err
		}
	}
	return released, nil
}

func ids(zs []model.ExclusionZone) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.ID
	}
	return out
}
