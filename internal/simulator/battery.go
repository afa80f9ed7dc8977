package simulator

import "sync"

// Battery is a percentage charge drained by driving and refilled while idle.
type Battery struct {
	// DrainPerMeter is the charge lost per meter driven, in percent.
	DrainPerMeter float64
	// ChargePerTick is the charge regained on each idle status tick, in percent.
	ChargePerTick float64

	mu    sync.Mutex
	level float64
}

// NewBattery returns a battery at level percent.
func NewBattery(level, drainPerMeter, chargePerTick float64) *Battery {
	b := &Battery{DrainPerMeter: drainPerMeter, ChargePerTick: chargePerTick}
	b.level = clamp(level)
	return b
}

// Drive removes the charge needed for meters and returns the new level.
func (b *Battery) Drive(meters float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level - meters*b.DrainPerMeter)
	return b.level
}

// Charge adds one idle tick worth of charge and returns the new level.
func (b *Battery) Charge() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = clamp(b.level + b.ChargePerTick)
	return b.level
}

// Level returns the current charge in percent.
func (b *Battery) Level() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.level
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
