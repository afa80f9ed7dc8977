// Package scheduler decides when dispatch cycles run. A cycle is started
// periodically, when a fleet is flagged on the event bus and when a
// scheduled trip becomes due. Fleets with no change since their last cycle
// are skipped by the engine, so the periodic run is cheap.
package scheduler
