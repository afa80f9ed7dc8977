package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetcore/core/commands"
	"github.com/kilianp07/fleetcore/core/notify"
)

// MockPublisher records outbound traffic instead of publishing it. It is used
// in tests and when no broker is configured.
type MockPublisher struct {
	Commands      []commands.Command
	Notifications []notify.Notification
	FailCarriers  map[string]bool
	mu            sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{FailCarriers: make(map[string]bool)}
}

// Send records cmd or fails when its carrier is configured to fail.
func (m *MockPublisher) Send(_ context.Context, cmd commands.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCarriers[cmd.Carrier] {
		return fmt.Errorf("publish to %s failed", cmd.Carrier)
	}
	m.Commands = append(m.Commands, cmd)
	return nil
}

// Notify records n.
func (m *MockPublisher) Notify(_ context.Context, n notify.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, n)
}

// Sent returns the commands sent to carrier.
func (m *MockPublisher) Sent(carrier string) []commands.Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []commands.Command
	for _, c := range m.Commands {
		if c.Carrier == carrier {
			out = append(out, c)
		}
	}
	return out
}
