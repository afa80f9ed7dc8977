// Package notify carries human-readable events about named entities to
// operators.
package notify

import (
	"context"
	"time"

	"github.com/kilianp07/fleetcore/core/logger"
	"github.com/kilianp07/fleetcore/internal/eventbus"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo   Level = "info"
	LevelAction Level = "action_request"
	LevelAlert  Level = "alert"
)

// Notification is delivered to the notification sink.
type Notification struct {
	Entities []string  `json:"entities"`
	Message  string    `json:"message"`
	Level    Level     `json:"level"`
	Module   string    `json:"module"`
	Time     time.Time `json:"time"`
}

// Sink receives notifications. Delivery is best effort.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// NopSink drops everything.
type NopSink struct{}

func (NopSink) Notify(context.Context, Notification) {}

// BusSink publishes notifications on a typed event bus.
type BusSink struct {
	Bus *eventbus.TypedBus[Notification]
}

func (s BusSink) Notify(_ context.Context, n Notification) {
	if s.Bus == nil {
		return
	}
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	s.Bus.Publish(n)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	Log logger.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) {
	s.Log.Debugw(n.Message, map[string]any{"entities": n.Entities, "level": string(n.Level), "module": n.Module})
}

// Multi fans a notification out to several sinks.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// Send is a shorthand building a Notification.
func Send(ctx context.Context, s Sink, module string, level Level, msg string, entities ...string) {
	if s == nil {
		return
	}
	s.Notify(ctx, Notification{Entities: entities, Message: msg, Level: level, Module: module, Time: time.Now()})
}
