// Package simulator drives fake carriers over MQTT. A simulated carrier
// acknowledges commands, drives to move destinations, answers peripheral
// requests, presses the dispatch button when asked to and reports its
// status periodically.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/core/trip"
	"github.com/kilianp07/fleetcore/infra/mqtt"
)

// Client is the part of a paho client a carrier uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// ModeFleet is the operating mode reported by a ready carrier.
const ModeFleet = "fleet"

const publishTimeout = 5 * time.Second

// envelope is the command as published by the control plane.
type envelope struct {
	ID      string          `json:"command_id"`
	Kind    commands.Kind   `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Carrier is one simulated vehicle.
type Carrier struct {
	Name     string
	Prefix   string
	Strategy AckStrategy
	Battery  *Battery
	// Speed is the driving speed in meters per second.
	Speed float64
	// TimeScale multiplies every simulated duration. 0.1 runs ten times faster.
	TimeScale float64
	// Interval between carrier_status reports.
	Interval time.Duration
	// AutoDispatch presses the dispatch button Dwell after the control plane
	// requests it.
	AutoDispatch bool
	Dwell        time.Duration

	client  Client
	log     logger.Logger
	queue   chan envelope
	presses chan struct{}

	mu     sync.Mutex
	pose   model.Pose
	moving bool
}

// NewCarrier returns a carrier parked at pose.
func NewCarrier(name string, pose model.Pose, log logger.Logger) *Carrier {
	return &Carrier{
		Name:         name,
		Prefix:       mqtt.DefaultPrefix,
		Strategy:     AutoAck{},
		Battery:      NewBattery(100, 0.01, 0.5),
		Speed:        1,
		TimeScale:    1,
		Interval:     5 * time.Second,
		AutoDispatch: true,
		Dwell:        2 * time.Second,
		log:          logger.OrNop(log),
		pose:         pose,
		queue:        make(chan envelope, 50),
		presses:      make(chan struct{}, 8),
	}
}

// Pose returns the current position.
func (c *Carrier) Pose() model.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// Run subscribes to the carrier's command topic and reports its status
// until ctx is done. Commands are processed one at a time in arrival order.
func (c *Carrier) Run(ctx context.Context, cli Client) error {
	c.client = cli
	if c.AutoDispatch {
		nt := mqtt.NotificationTopic(c.Prefix, "+")
		if token := cli.Subscribe(nt, 1, c.onNotification); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", nt, token.Error())
		}
	}
	topic := mqtt.CommandTopic(c.Prefix, c.Name)
	if token := cli.Subscribe(topic, 1, c.onCommand); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	c.reportStatus()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.worker(ctx)
	}()
	go func() {
		defer wg.Done()
		c.dispatcher(ctx)
	}()

	interval := c.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			c.mu.Lock()
			idle := !c.moving
			c.mu.Unlock()
			if idle {
				c.Battery.Charge()
			}
			c.reportStatus()
		}
	}
}

func (c *Carrier) onCommand(_ paho.Client, msg paho.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload(), &env); err != nil {
		c.log.Warnf("%s: decode command: %v", c.Name, err)
		return
	}
	select {
	case c.queue <- env:
	default:
		c.log.Warnf("%s: command queue full, dropping %s", c.Name, env.ID)
	}
}

// onNotification queues a button press for action requests naming the
// carrier first. The dispatch button is the only action a carrier is asked
// for.
func (c *Carrier) onNotification(_ paho.Client, msg paho.Message) {
	var n notify.Notification
	if err := json.Unmarshal(msg.Payload(), &n); err != nil {
		c.log.Warnf("%s: decode notification: %v", c.Name, err)
		return
	}
	if n.Level != notify.LevelAction || len(n.Entities) == 0 || n.Entities[0] != c.Name {
		return
	}
	select {
	case c.presses <- struct{}{}:
	default:
		c.log.Warnf("%s: dispatch request dropped: %s", c.Name, n.Message)
	}
}

func (c *Carrier) dispatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.presses:
			if !sleep(ctx, c.scaled(c.Dwell)) {
				return
			}
			c.publish(router.KindPeripheralAck, router.PeripheralAck{Device: model.DeviceDispatchButton, Phase: model.PhaseStart})
		}
	}
}

func (c *Carrier) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.queue:
			if !c.Strategy.Wait(ctx) {
				c.log.Debugf("%s: not acknowledging %s", c.Name, env.ID)
				continue
			}
			c.publish(router.KindCommandAck, router.CommandAck{CommandID: env.ID})
			if err := c.execute(ctx, env); err != nil {
				c.log.Warnf("%s: %s %s: %v", c.Name, env.Kind, env.ID, err)
			}
		}
	}
}

func (c *Carrier) execute(ctx context.Context, env envelope) error {
	switch env.Kind {
	case commands.KindMove:
		var mv commands.Move
		if err := json.Unmarshal(env.Payload, &mv); err != nil {
			return err
		}
		c.drive(ctx, mv)
	case commands.KindPeripheral:
		var p commands.Peripheral
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		c.publish(router.KindPeripheralAck, router.PeripheralAck{Device: p.Device, Phase: model.PhaseStart})
		if sleep(ctx, c.scaled(time.Second)) {
			c.publish(router.KindPeripheralAck, router.PeripheralAck{Device: p.Device, Phase: model.PhaseEnd})
		}
	case commands.KindTerminate, commands.KindVisaResponse:
	default:
		return fmt.Errorf("unsupported command kind %q", env.Kind)
	}
	return nil
}

// drive travels to the move destination in a straight line and reports
// the arrival.
func (c *Carrier) drive(ctx context.Context, mv commands.Move) {
	from := c.Pose()
	dist := from.Distance(mv.Pose)
	eta := 0.0
	if c.Speed > 0 {
		eta = dist / c.Speed
	}
	c.mu.Lock()
	c.moving = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.moving = false
		c.mu.Unlock()
	}()

	c.publish(router.KindTripStatus, trip.LegReport{TripID: mv.TripID, TripLegID: mv.TripLegID, ETA: eta, Status: model.LegMoving})
	if !sleep(ctx, c.scaled(time.Duration(eta*float64(time.Second)))) {
		return
	}
	c.Battery.Drive(dist)
	c.mu.Lock()
	c.pose = mv.Pose
	c.mu.Unlock()
	c.publish(router.KindReached, trip.Reached{
		TripID:      mv.TripID,
		TripLegID:   mv.TripLegID,
		Destination: mv.Destination,
		Pose:        mv.Pose,
	})
	c.reportStatus()
}

func (c *Carrier) scaled(d time.Duration) time.Duration {
	if c.TimeScale <= 0 {
		return d
	}
	return time.Duration(float64(d) * c.TimeScale)
}

func (c *Carrier) reportStatus() {
	c.publish(router.KindCarrierStatus, model.CarrierStatus{
		Carrier: c.Name,
		Pose:    c.Pose(),
		Battery: c.Battery.Level(),
		Mode:    ModeFleet,
		Updated: time.Now(),
	})
}

func (c *Carrier) publish(kind router.Kind, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.log.Errorf("%s: marshal %s: %v", c.Name, kind, err)
		return
	}
	token := c.client.Publish(mqtt.ReportTopic(c.Prefix, c.Name, kind.String()), 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		c.log.Warnf("%s: publish %s timed out", c.Name, kind)
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warnf("%s: publish %s: %v", c.Name, kind, err)
	}
}
