// Package router turns inbound messages into core operations. Every carrier
// owns an ordered queue drained by its own goroutine, so one carrier's
// messages are handled in arrival order while carriers proceed in parallel.
// Zone requests, health checks and client requests go to shared worker
// pools without ordering guarantees.
//
// Each message is handled as one unit of work: the fleets it touched are
// dispatched afterwards and carriers that received a trip hint are queued
// for the task assigner.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetcore/core/assign"
	"github.com/kilianp07/fleetcore/core/dispatch"
	"github.com/kilianp07/fleetcore/core/health"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/monitoring"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/core/trip"
	"github.com/kilianp07/fleetcore/core/zone"
)

// Config defines queue sizing.
type Config struct {
	QueueSize     int `json:"queue_size"`
	GlobalWorkers int `json:"global_workers"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.GlobalWorkers <= 0 {
		c.GlobalWorkers = 4
	}
}

// Trips is the trip lifecycle as seen by the router.
type Trips interface {
	Book(ctx context.Context, b trip.Booking) (model.Trip, trip.Validation, error)
	Cancel(ctx context.Context, tripID int64, reason string) (model.Trip, error)
	ForceEnd(ctx context.Context, tripID int64, reason string) (model.Trip, error)
	TripID(ctx context.Context, bookingID string) (int64, error)
	EndLeg(ctx context.Context, carrier string, r trip.Reached) (trip.Arrival, error)
	UpdateLeg(ctx context.Context, carrier string, r trip.LegReport) (model.TripLeg, error)
	HandlePeripheral(ctx context.Context, carrier string, device model.Device, phase model.Phase) (model.OngoingTrip, error)
	RequestContinue(ctx context.Context, carrier string) error
}

// Zones is the exclusion zone manager as seen by the router.
type Zones interface {
	Request(ctx context.Context, carrier, zoneID string, exclusive bool) (zone.Decision, error)
	Release(ctx context.Context, carrier, zoneID string) ([]string, error)
	ReleaseAll(ctx context.Context, carrier string) ([]string, error)
	Prime(ctx context.Context, carrier string) (zone.Decision, error)
	OnPosition(ctx context.Context, carrier string, pose model.Pose, dest *model.Pose) (zone.Movement, error)
}

// Assigner runs the task assigner for one carrier.
type Assigner interface {
	Run(ctx context.Context, carrier string) ([]assign.Task, error)
}

// Dispatcher runs dispatch cycles.
type Dispatcher interface {
	Trigger(ctx context.Context, fleets ...string) []dispatch.Result
}

// Health supervises heartbeats.
type Health interface {
	Heartbeat(ctx context.Context, st model.CarrierStatus) (bool, error)
	Check(ctx context.Context) ([]model.Carrier, error)
	Disable(ctx context.Context, carrier string, reason model.DisableReason) error
	Enable(ctx context.Context, carrier string, reason model.DisableReason) error
}

// Replies resolves outbound commands.
type Replies interface {
	Resolve(id string) bool
}

// Deps are the collaborators of a Router. Store, Trips, Zones and Assigner
// are required; kinds served by a missing optional dependency are unknown.
type Deps struct {
	Store    store.Store
	Trips    Trips
	Zones    Zones
	Assigner Assigner
	Dispatch Dispatcher
	Health   Health
	Replies  Replies
	Logger   logger.Logger
}

// Handler processes one message and returns its result.
type Handler func(ctx context.Context, m Message) (any, error)

// Outcome is the result of handling a message.
type Outcome struct {
	Message  Message
	Result   any
	Err      error
	Fleets   []string
	Dispatch []dispatch.Result
}

// Router owns the dispatch table and the queues.
type Router struct {
	deps  Deps
	cfg   Config
	log   logger.Logger
	table map[Kind]Handler

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	carriers  map[string]chan Message
	pools     map[lane]chan Message
	onOutcome func(Outcome)
	wg        sync.WaitGroup
}

// New builds a Router and its dispatch table.
func New(deps Deps, cfg Config) (*Router, error) {
	if deps.Store == nil || deps.Trips == nil || deps.Zones == nil || deps.Assigner == nil {
		return nil, fmt.Errorf("router: nil parameter provided to New")
	}
	cfg.SetDefaults()
	r := &Router{deps: deps, cfg: cfg, log: logger.OrNop(deps.Logger)}
	r.table = r.buildTable()
	return r, nil
}

func (r *Router) buildTable() map[Kind]Handler {
	t := map[Kind]Handler{
		KindBook:              r.book,
		KindReached:           r.reached,
		KindTripStatus:        r.tripStatus,
		KindPeripheralAck:     r.peripheralAck,
		KindResourceAccess:    r.resourceAccess,
		KindDeleteOngoingTrip: r.deleteOngoingTrip,
		KindDeleteBookedTrip:  r.deleteBookedTrip,
		KindInductCarrier:     r.inductCarrier,
		KindAssignNextTask:    r.assignNextTask,
		KindContinueLeg:       r.continueLeg,
	}
	if r.deps.Dispatch != nil {
		t[KindTriggerOptimalDispatch] = r.triggerDispatch
	}
	if r.deps.Health != nil {
		t[KindCarrierStatus] = r.carrierStatus
		t[KindHealthCheck] = r.healthCheck
		t[KindCarrierMode] = r.carrierMode
	}
	if r.deps.Replies != nil {
		t[KindCommandAck] = r.commandAck
	}
	return t
}

// Handles reports whether k has a handler.
func (r *Router) Handles(k Kind) bool {
	_, ok := r.table[k]
	return ok
}

// OnOutcome registers fn to receive the outcome of queued messages. It must
// be called before Start.
func (r *Router) OnOutcome(fn func(Outcome)) {
	r.mu.Lock()
	r.onOutcome = fn
	r.mu.Unlock()
}

// Start launches the global worker pools. Carrier queues are created on
// first use.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.carriers = make(map[string]chan Message)
	r.pools = make(map[lane]chan Message)
	for _, l := range []lane{laneResource, laneHealth, laneMisc} {
		ch := make(chan Message, r.cfg.QueueSize)
		r.pools[l] = ch
		for i := 0; i < r.cfg.GlobalWorkers; i++ {
			r.wg.Add(1)
			go r.worker(r.ctx, ch)
		}
	}
	r.running = true
}

// Stop cancels every worker and waits for them. Queued messages are dropped.
func (r *Router) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}

// queue returns the channel m is processed on.
func (r *Router) queue(m Message) (chan Message, context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return nil, nil, ErrNotStarted
	}
	if m.Kind.lane() != laneCarrier {
		return r.pools[m.Kind.lane()], r.ctx, nil
	}
	if m.Carrier == "" {
		return nil, nil, ErrNoCarrier
	}
	ch, ok := r.carriers[m.Carrier]
	if !ok {
		ch = make(chan Message, r.cfg.QueueSize)
		r.carriers[m.Carrier] = ch
		r.wg.Add(1)
		go r.worker(r.ctx, ch)
	}
	return ch, r.ctx, nil
}

// Submit queues m, blocking while the queue is full.
func (r *Router) Submit(ctx context.Context, m Message) error {
	if !r.Handles(m.Kind) {
		return fmt.Errorf("%w: %v", ErrUnknownKind, m.Kind)
	}
	ch, run, err := r.queue(m)
	if err != nil {
		return err
	}
	select {
	case ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-run.Done():
		return ErrNotStarted
	}
}

// TrySubmit queues m without blocking.
func (r *Router) TrySubmit(m Message) error {
	if !r.Handles(m.Kind) {
		return fmt.Errorf("%w: %v", ErrUnknownKind, m.Kind)
	}
	ch, _, err := r.queue(m)
	if err != nil {
		return err
	}
	select {
	case ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Router) worker(ctx context.Context, ch <-chan Message) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ch:
			r.process(ctx, m)
		}
	}
}

func (r *Router) process(ctx context.Context, m Message) {
	defer func() {
		if v := recover(); v != nil {
			monitoring.CapturePanic(v, monitoring.Tags("module", "router", "kind", m.Kind.String(), "carrier", m.Carrier))
			r.log.Errorf("%s from %s: %v", m.Kind, m.Source, monitoring.PanicError(v))
		}
	}()
	out := r.Handle(ctx, m)
	r.mu.Lock()
	fn := r.onOutcome
	r.mu.Unlock()
	if fn != nil {
		fn(out)
	}
}

// Handle runs m synchronously as one unit of work.
func (r *Router) Handle(ctx context.Context, m Message) Outcome {
	out := Outcome{Message: m}
	h, ok := r.table[m.Kind]
	if !ok {
		out.Err = fmt.Errorf("%w: %v", ErrUnknownKind, m.Kind)
		return out
	}
	rc := request.New(m.Source)
	ctx = request.With(ctx, rc)
	out.Result, out.Err = h(ctx, m)
	if out.Err != nil {
		r.report(m, out.Err)
	}
	out.Fleets = rc.Fleets()
	r.followUp(ctx, &out)
	return out
}

// expected errors are protocol level rejections, not faults.
var expected = []error{
	trip.ErrUnsolicitedPeripheral,
	trip.ErrStaleEvent,
	trip.ErrConflict,
	trip.ErrNotPending,
	trip.ErrTerminal,
	zone.ErrNotHolder,
	health.ErrReasonMismatch,
	ErrInvalidMode,
	store.ErrNotFound,
	ErrNoCarrier,
}

func (r *Router) report(m Message, err error) {
	for _, e := range expected {
		if errors.Is(err, e) {
			r.log.Warnf("%s from %s rejected: %v", m.Kind, m.Source, err)
			return
		}
	}
	r.log.Errorf("%s from %s: %v", m.Kind, m.Source, err)
	monitoring.CaptureException(err, monitoring.Tags("module", "router", "kind", m.Kind.String(), "carrier", m.Carrier))
}

// followUp dispatches the touched fleets and hands fresh hints to the task
// assigner through the carriers' own queues.
func (r *Router) followUp(ctx context.Context, out *Outcome) {
	if len(out.Fleets) == 0 || r.deps.Dispatch == nil {
		return
	}
	out.Dispatch = r.deps.Dispatch.Trigger(ctx, out.Fleets...)
	for _, res := range out.Dispatch {
		for _, p := range res.Pairs {
			next := Message{Kind: KindAssignNextTask, Source: "dispatch", Carrier: p.Carrier, Payload: AssignNextTask{Carrier: p.Carrier}}
			err := r.TrySubmit(next)
			if errors.Is(err, ErrNotStarted) {
				if _, err := r.deps.Assigner.Run(ctx, p.Carrier); err != nil {
					r.log.Warnf("assign %s: %v", p.Carrier, err)
				}
				continue
			}
			if err != nil {
				// the carrier keeps its trigger flag and is picked up later
				r.log.Warnf("queue assign_next_task for %s: %v", p.Carrier, err)
			}
		}
	}
}
