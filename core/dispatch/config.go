package dispatch

import "fmt"

// Solver names accepted in Config.Solver.
const (
	SolverJV = "jv"
	SolverLP = "lp"
)

// Config defines dispatch-related settings.
type Config struct {
	// EtaPowerFactor weighs route time in the assignment cost, in (0,1].
	EtaPowerFactor float64 `json:"eta_power_factor"`
	// PriorityPowerFactor weighs trip priority in the assignment cost, in (0,1].
	PriorityPowerFactor float64 `json:"priority_power_factor"`
	// WaitingTimeFactor scales priorities by how long trips have been queued.
	WaitingTimeFactor bool `json:"waiting_time_factor"`
	// MaxTripsPerCycle bounds the carrier columns considered per cycle.
	// Zero means unbounded.
	MaxTripsPerCycle int `json:"max_trips_per_cycle"`
	// IncludeBusyCarriers lets carriers finishing a trip be matched ahead of
	// time, starting from their final destination.
	IncludeBusyCarriers bool `json:"include_busy_carriers"`
	// Solver selects the assignment algorithm: "jv" or "lp".
	Solver string `json:"solver"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.EtaPowerFactor == 0 {
		c.EtaPowerFactor = 0.1
	}
	if c.PriorityPowerFactor == 0 {
		c.PriorityPowerFactor = 0.9
	}
	if c.Solver == "" {
		c.Solver = SolverJV
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.EtaPowerFactor <= 0 || c.EtaPowerFactor > 1 {
		return fmt.Errorf("dispatch: eta_power_factor %v not in (0,1]", c.EtaPowerFactor)
	}
	if c.PriorityPowerFactor <= 0 || c.PriorityPowerFactor > 1 {
		return fmt.Errorf("dispatch: priority_power_factor %v not in (0,1]", c.PriorityPowerFactor)
	}
	if c.MaxTripsPerCycle < 0 {
		return fmt.Errorf("dispatch: max_trips_per_cycle must not be negative")
	}
	switch c.Solver {
	case SolverJV, SolverLP:
	default:
		return fmt.Errorf("dispatch: unknown solver %q", c.Solver)
	}
	return nil
}
