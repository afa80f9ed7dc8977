package simulator

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// AckStrategy decides when a simulated carrier acknowledges a command.
type AckStrategy interface {
	// Wait blocks for the acknowledgement delay. It returns false when the
	// acknowledgement must not be sent.
	Wait(ctx context.Context) bool
}

// AutoAck acknowledges every command after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Wait implements AckStrategy.
func (a AutoAck) Wait(ctx context.Context) bool {
	return sleep(ctx, a.Delay)
}

// RandomAck drops acknowledgements with probability DropRate and delays
// the others.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomAck seeds a RandomAck.
func NewRandomAck(delay time.Duration, dropRate float64, seed int64) *RandomAck {
	return &RandomAck{Delay: delay, DropRate: dropRate, rng: rand.New(rand.NewSource(seed))}
}

// Wait implements AckStrategy.
func (r *RandomAck) Wait(ctx context.Context) bool {
	if r.DropRate > 0 {
		r.mu.Lock()
		drop := r.rng.Float64() < r.DropRate
		r.mu.Unlock()
		if drop {
			return false
		}
	}
	return sleep(ctx, r.Delay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
