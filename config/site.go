package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/routing"
	"github.com/kilianp07/fleetcore/core/store"
)

// Site describes the static layout of a deployment: fleets, their stations
// and carriers, the exclusion zones and the station graph of each fleet.
type Site struct {
	Fleets   []model.Fleet             `yaml:"fleets"`
	Stations []model.Station           `yaml:"stations"`
	Carriers []model.Carrier           `yaml:"carriers"`
	Zones    []model.ExclusionZone     `yaml:"zones"`
	Edges    map[string][]routing.Edge `yaml:"edges"` // keyed by fleet
}

// LoadSite parses the site file at path, fills defaults and validates it.
func LoadSite(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site file: %w", err)
	}
	return ParseSite(data)
}

// ParseSite decodes a YAML site description. Unknown keys are rejected.
func ParseSite(data []byte) (*Site, error) {
	var s Site
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode site: %w", err)
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetDefaults fills fleet statuses and zone names.
func (s *Site) SetDefaults() {
	for i := range s.Fleets {
		if s.Fleets[i].Status == "" {
			s.Fleets[i].Status = model.FleetRunning
		}
	}
	for i := range s.Zones {
		if s.Zones[i].Name == "" {
			s.Zones[i].Name = s.Zones[i].ID
		}
		if s.Zones[i].Kind == "" {
			s.Zones[i].Kind = model.ZoneStation
		}
	}
}

// Validate checks names are unique and every reference resolves. All
// problems are reported at once.
func (s *Site) Validate() error {
	var errs []error
	fleets := make(map[string]bool, len(s.Fleets))
	for _, f := range s.Fleets {
		switch {
		case f.Name == "":
			errs = append(errs, errors.New("fleet without name"))
		case fleets[f.Name]:
			errs = append(errs, fmt.Errorf("duplicate fleet %q", f.Name))
		}
		switch f.Status {
		case model.FleetRunning, model.FleetStopped, model.FleetMaintenance:
		default:
			errs = append(errs, fmt.Errorf("fleet %q: unknown status %q", f.Name, f.Status))
		}
		fleets[f.Name] = true
	}

	stations := make(map[string]model.Station, len(s.Stations))
	for _, st := range s.Stations {
		switch {
		case st.Name == "":
			errs = append(errs, errors.New("station without name"))
		case stations[st.Name].Name != "":
			errs = append(errs, fmt.Errorf("duplicate station %q", st.Name))
		}
		if !fleets[st.Fleet] {
			errs = append(errs, fmt.Errorf("station %q: unknown fleet %q", st.Name, st.Fleet))
		}
		stations[st.Name] = st
	}
	inFleet := func(owner, fleet, name string) {
		st, ok := stations[name]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s: unknown station %q", owner, name))
		case fleet != "" && st.Fleet != fleet:
			errs = append(errs, fmt.Errorf("%s: station %q belongs to fleet %q", owner, name, st.Fleet))
		}
	}

	carriers := make(map[string]bool, len(s.Carriers))
	for _, c := range s.Carriers {
		owner := fmt.Sprintf("carrier %q", c.Name)
		switch {
		case c.Name == "":
			errs = append(errs, errors.New("carrier without name"))
		case carriers[c.Name]:
			errs = append(errs, fmt.Errorf("duplicate carrier %q", c.Name))
		}
		carriers[c.Name] = true
		if !fleets[c.Fleet] {
			errs = append(errs, fmt.Errorf("%s: unknown fleet %q", owner, c.Fleet))
		}
		if c.ParkingStation != "" {
			inFleet(owner, c.Fleet, c.ParkingStation)
		}
		for _, ex := range c.ExcludedStations {
			inFleet(owner, c.Fleet, ex)
		}
	}

	zones := make(map[string]bool, len(s.Zones))
	for _, z := range s.Zones {
		switch {
		case z.ID == "":
			errs = append(errs, errors.New("zone without id"))
		case zones[z.ID]:
			errs = append(errs, fmt.Errorf("duplicate zone %q", z.ID))
		}
		zones[z.ID] = true
		if z.Kind != model.ZoneLane && z.Kind != model.ZoneStation {
			errs = append(errs, fmt.Errorf("zone %q: unknown kind %q", z.ID, z.Kind))
		}
		for _, name := range z.Stations {
			inFleet(fmt.Sprintf("zone %q", z.ID), "", name)
		}
	}
	for _, z := range s.Zones {
		for _, g := range z.LinkedGates {
			if g == z.ID {
				errs = append(errs, fmt.Errorf("zone %q: linked to itself", z.ID))
			} else if !zones[g] {
				errs = append(errs, fmt.Errorf("zone %q: unknown linked gate %q", z.ID, g))
			}
		}
	}

	for fleet, edges := range s.Edges {
		if !fleets[fleet] {
			errs = append(errs, fmt.Errorf("edges: unknown fleet %q", fleet))
			continue
		}
		for _, e := range edges {
			owner := fmt.Sprintf("edge %s-%s", e.From, e.To)
			inFleet(owner, fleet, e.From)
			inFleet(owner, fleet, e.To)
			if e.Length < 0 {
				errs = append(errs, fmt.Errorf("%s: negative length", owner))
			}
		}
	}
	return errors.Join(errs...)
}

// Seed writes the site entities into st in a single transaction. Existing
// entities with the same names are replaced.
func (s *Site) Seed(ctx context.Context, st store.Store) error {
	return st.Update(ctx, func(tx store.Tx) error {
		for _, f := range s.Fleets {
			if err := tx.PutFleet(f); err != nil {
				return err
			}
		}
		for _, station := range s.Stations {
			if err := tx.PutStation(station); err != nil {
				return err
			}
		}
		for _, c := range s.Carriers {
			if err := tx.PutCarrier(c); err != nil {
				return err
			}
		}
		for _, z := range s.Zones {
			if err := tx.PutZone(z); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadGraphs installs the station graph of every fleet into o.
func (s *Site) LoadGraphs(o *routing.GraphOracle) {
	byFleet := make(map[string][]model.Station)
	for _, st := range s.Stations {
		byFleet[st.Fleet] = append(byFleet[st.Fleet], st)
	}
	for _, f := range s.Fleets {
		o.Load(f.Name, byFleet[f.Name], s.Edges[f.Name])
	}
}
