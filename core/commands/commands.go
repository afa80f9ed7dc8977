// Package commands sends requests to carriers and tracks their replies.
// Sending never blocks on the reply: acknowledgements come back as inbound
// messages and are matched by request id.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
)

// ErrReplyTimeout marks a request the carrier did not acknowledge in time.
var ErrReplyTimeout = errors.New("carrier reply timeout")

// Kind names the request sent to a carrier.
type Kind string

const (
	KindMove         Kind = "move"
	KindTerminate    Kind = "terminate"
	KindPeripheral   Kind = "peripheral"
	KindVisaResponse Kind = "visa_response"
)

// Command is the outbound envelope.
type Command struct {
	ID      string    `json:"command_id"`
	Carrier string    `json:"carrier"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"timestamp"`
}

// Move asks the carrier to drive to a station.
type Move struct {
	TripID      int64      `json:"trip_id"`
	TripLegID   int64      `json:"trip_leg_id"`
	Destination string     `json:"destination_name"`
	Pose        model.Pose `json:"destination_pose"`
}

// Terminate aborts the carrier's current trip.
type Terminate struct {
	TripID int64  `json:"trip_id"`
	Reason string `json:"reason"`
}

// Peripheral requests a station side action.
type Peripheral struct {
	Device   model.Device `json:"device"`
	Station  string       `json:"station"`
	NumUnits int          `json:"num_units,omitempty"`
}

// VisaResponse answers a resource access request.
type VisaResponse struct {
	Zones   []string `json:"zones"`
	Granted bool     `json:"granted"`
	Reason  string   `json:"reason,omitempty"`
	Release bool     `json:"release,omitempty"`
}

// Sender delivers a command to the transport.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, cmd Command) error

func (f SenderFunc) Send(ctx context.Context, cmd Command) error { return f(ctx, cmd) }

// Result is reported once per tracked command.
type Result struct {
	Command Command
	Err     error // nil when acknowledged
	Latency time.Duration
}

// Commander builds, sends and tracks commands.
type Commander struct {
	sender  Sender
	timeout time.Duration
	log     logger.Logger
	now     func() time.Time

	mu       sync.Mutex
	pending  map[string]Command
	onResult func(Result)
}

// New returns a Commander. A non positive timeout disables tracking.
func New(sender Sender, timeout time.Duration, log logger.Logger) *Commander {
	return &Commander{
		sender:  sender,
		timeout: timeout,
		log:     logger.OrNop(log),
		now:     time.Now,
		pending: make(map[string]Command),
	}
}

// OnResult registers the callback invoked when a command is acknowledged or
// expires. It must not block.
func (c *Commander) OnResult(fn func(Result)) {
	c.mu.Lock()
	c.onResult = fn
	c.mu.Unlock()
}

// Send publishes a command and starts tracking its reply. It returns the
// request id.
func (c *Commander) Send(ctx context.Context, carrier string, kind Kind, payload any) (string, error) {
	cmd := Command{ID: uuid.NewString(), Carrier: carrier, Kind: kind, Payload: payload, SentAt: c.now()}
	if c.timeout > 0 {
		c.mu.Lock()
		c.pending[cmd.ID] = cmd
		c.mu.Unlock()
	}
	if err := c.sender.Send(ctx, cmd); err != nil {
		c.mu.Lock()
		delete(c.pending, cmd.ID)
		c.mu.Unlock()
		return "", fmt.Errorf("send %s to %s: %w", kind, carrier, err)
	}
	c.log.Debugf("sent %s %s to %s", kind, cmd.ID, carrier)
	return cmd.ID, nil
}

// Move sends a move command.
func (c *Commander) Move(ctx context.Context, carrier string, m Move) (string, error) {
	return c.Send(ctx, carrier, KindMove, m)
}

// Terminate sends a terminate command.
func (c *Commander) Terminate(ctx context.Context, carrier string, t Terminate) (string, error) {
	return c.Send(ctx, carrier, KindTerminate, t)
}

// Peripheral sends a peripheral action request.
func (c *Commander) Peripheral(ctx context.Context, carrier string, p Peripheral) (string, error) {
	return c.Send(ctx, carrier, KindPeripheral, p)
}

// Visa answers a resource access request.
func (c *Commander) Visa(ctx context.Context, carrier string, v VisaResponse) (string, error) {
	return c.Send(ctx, carrier, KindVisaResponse, v)
}

// Resolve matches an acknowledgement. Unknown or expired ids return false.
func (c *Commander) Resolve(id string) bool {
	c.mu.Lock()
	cmd, ok := c.pending[id]
	delete(c.pending, id)
	fn := c.onResult
	c.mu.Unlock()
	if !ok {
		c.log.Debugf("ack for unknown command %s", id)
		return false
	}
	if fn != nil {
		fn(Result{Command: cmd, Latency: c.now().Sub(cmd.SentAt)})
	}
	return true
}

// Pending reports the number of unacknowledged commands.
func (c *Commander) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Expire fails every command older than the reply timeout. Expired commands
// are never resent.
func (c *Commander) Expire() []Result {
	now := c.now()
	var out []Result
	c.mu.Lock()
	for id, cmd := range c.pending {
		if now.Sub(cmd.SentAt) < c.timeout {
			continue
		}
		delete(c.pending, id)
		out = append(out, Result{
			Command: cmd,
			Err:     fmt.Errorf("%s %s to %s: %w", cmd.Kind, id, cmd.Carrier, ErrReplyTimeout),
			Latency: now.Sub(cmd.SentAt),
		})
	}
	fn := c.onResult
	c.mu.Unlock()
	for _, r := range out {
		c.log.Warnf("%v", r.Err)
		if fn != nil {
			fn(r)
		}
	}
	return out
}

// Run expires commands periodically until ctx is done.
func (c *Commander) Run(ctx context.Context, every time.Duration) {
	if c.timeout <= 0 {
		return
	}
	if every <= 0 {
		every = c.timeout / 2
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Expire()
		}
	}
}
