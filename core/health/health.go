// Package health tracks carrier heartbeats. A carrier whose last status is
// older than the heartbeat timeout is disabled with a stale heartbeat reason
// and re-enabled by its next healthy status. Manual and emergency stops are
// only cleared by Enable with the same reason.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/fleetcore/core/events"
	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/notify"
	"github.com/kilianp07/fleetcore/core/request"
	"github.com/kilianp07/fleetcore/core/store"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

const module = "health"

// Carrier modes reported in status updates. Any other mode counts as
// initialized.
const (
	ModeBooting      = "booting"
	ModeDisconnected = "disconnected"
)

// ErrReasonMismatch is returned by Enable when the carrier was disabled for a
// different reason.
var ErrReasonMismatch = errors.New("disable reason does not match")

// Config defines heartbeat supervision settings.
type Config struct {
	HeartbeatTimeoutSeconds int `json:"heartbeat_timeout_seconds"`
	CheckIntervalSeconds    int `json:"check_interval_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.HeartbeatTimeoutSeconds <= 0 {
		c.HeartbeatTimeoutSeconds = 30
	}
	if c.CheckIntervalSeconds <= 0 {
		c.CheckIntervalSeconds = 5
	}
}

// Timeout returns the heartbeat timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutSeconds) * time.Second
}

// Interval returns the check interval.
func (c Config) Interval() time.Duration { return time.Duration(c.CheckIntervalSeconds) * time.Second }

// Monitor supervises carrier heartbeats.
type Monitor struct {
	store   store.Store
	timeout time.Duration
	bus     eventbus.EventBus
	notify  notify.Sink
	log     logger.Logger
	now     func() time.Time
}

// NewMonitor creates a Monitor. bus and sink may be nil.
func NewMonitor(st store.Store, cfg Config, bus eventbus.EventBus, sink notify.Sink, log logger.Logger) *Monitor {
	cfg.SetDefaults()
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Monitor{store: st, timeout: cfg.Timeout(), bus: bus, notify: sink, log: logger.OrNop(log), now: time.Now}
}

// Heartbeat stores a status update and refreshes the carrier. It reports
// whether the carrier's availability changed.
func (m *Monitor) Heartbeat(ctx context.Context, st model.CarrierStatus) (bool, error) {
	if st.Updated.IsZero() {
		st.Updated = m.now()
	}
	var (
		changed bool
		c       model.Carrier
	)
	err := m.store.Update(ctx, func(tx store.Tx) error {
		var err error
		if c, err = tx.Carrier(st.Carrier); err != nil {
			return err
		}
		before := c.Available()
		c.Pose = st.Pose
		c.LastHeartbeat = st.Updated
		c.Initialized = st.Mode != "" && st.Mode != ModeBooting && st.Mode != ModeDisconnected
		switch {
		case st.Error != "":
			if !c.Disabled {
				c.Disabled, c.DisableReason = true, model.ReasonCarrierError
			}
		case c.Disabled && !c.DisableReason.Manual():
			c.Disabled, c.DisableReason = false, model.ReasonNone
			c.AssignNextTask = true
		}
		changed = before != c.Available()
		if err := tx.PutCarrierStatus(st); err != nil {
			return err
		}
		return tx.PutCarrier(c)
	})
	if err != nil {
		return false, fmt.Errorf("heartbeat %s: %w", st.Carrier, err)
	}
	if changed {
		request.Touch(ctx, c.Fleet)
		if c.Disabled {
			notify.Send(ctx, m.notify, module, notify.LevelAlert, fmt.Sprintf("%s reported error: %s", c.Name, st.Error), c.Name)
		}
		m.log.Infof("carrier %s available=%v", c.Name, c.Available())
	}
	return changed, nil
}

// Check disables every inducted carrier whose heartbeat is older than the
// timeout and returns them. Carriers that never reported are skipped: they
// are not initialized and cannot be dispatched anyway.
func (m *Monitor) Check(ctx context.Context) ([]model.Carrier, error) {
	now := m.now()
	var stale []model.Carrier
	err := m.store.Update(ctx, func(tx store.Tx) error {
		stale = stale[:0]
		for _, c := range tx.Carriers("") {
			if !c.Inducted || c.Disabled || c.LastHeartbeat.IsZero() || now.Sub(c.LastHeartbeat) <= m.timeout {
				continue
			}
			c.Disabled, c.DisableReason = true, model.ReasonStaleHeartbeat
			if err := tx.PutCarrier(c); err != nil {
				return err
			}
			stale = append(stale, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	for _, c := range stale {
		request.Touch(ctx, c.Fleet)
		if m.bus != nil {
			m.bus.Publish(events.CarrierDisconnected{Carrier: c.Name, Fleet: c.Fleet})
		}
		notify.Send(ctx, m.notify, module, notify.LevelAlert,
			fmt.Sprintf("%s lost connection, last heartbeat %s", c.Name, c.LastHeartbeat.Format(time.RFC3339)), c.Name)
		m.log.Warnf("carrier %s disabled: %s", c.Name, model.ReasonStaleHeartbeat)
	}
	return stale, nil
}

// Disable takes a carrier out of service for an operator reason.
func (m *Monitor) Disable(ctx context.Context, carrier string, reason model.DisableReason) error {
	return m.setDisabled(ctx, carrier, true, reason)
}

// Enable clears a disable reason. A carrier disabled for another reason
// stays disabled and ErrReasonMismatch is returned.
func (m *Monitor) Enable(ctx context.Context, carrier string, reason model.DisableReason) error {
	return m.setDisabled(ctx, carrier, false, reason)
}

func (m *Monitor) setDisabled(ctx context.Context, carrier string, disabled bool, reason model.DisableReason) error {
	var fleet string
	err := m.store.Update(ctx, func(tx store.Tx) error {
		c, err := tx.Carrier(carrier)
		if err != nil {
			return err
		}
		fleet = c.Fleet
		if !disabled {
			if !c.Disabled {
				return nil
			}
			if c.DisableReason != reason {
				return fmt.Errorf("%s disabled for %s: %w", carrier, c.DisableReason, ErrReasonMismatch)
			}
			c.AssignNextTask = true
		}
		c.Disabled = disabled
		c.DisableReason = reason
		if !disabled {
			c.DisableReason = model.ReasonNone
		}
		return tx.PutCarrier(c)
	})
	if err != nil {
		return fmt.Errorf("set disabled %s: %w", carrier, err)
	}
	request.Touch(ctx, fleet)
	return nil
}

// Run calls Check every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.log.Errorf("%v", err)
			}
		}
	}
}
