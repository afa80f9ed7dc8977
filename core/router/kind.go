package router

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for message kinds without a handler.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrNoCarrier is returned for carrier messages that name no carrier.
	ErrNoCarrier = errors.New("message names no carrier")
	// ErrNotStarted is returned by Submit before Start or after Stop.
	ErrNotStarted = errors.New("router not running")
	// ErrQueueFull is returned by TrySubmit when the target queue is full.
	ErrQueueFull = errors.New("queue full")
	// ErrInvalidMode is returned for carrier modes operators cannot switch.
	ErrInvalidMode = errors.New("invalid carrier mode")
)

// Kind enumerates inbound messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindBook
	KindReached
	KindCarrierStatus
	KindTripStatus
	KindPeripheralAck
	KindResourceAccess
	KindDeleteOngoingTrip
	KindDeleteBookedTrip
	KindInductCarrier
	KindTriggerOptimalDispatch
	KindAssignNextTask
	KindHealthCheck
	KindCommandAck
	KindContinueLeg
	KindCarrierMode
)

var kindNames = map[Kind]string{
	KindBook:                   "book",
	KindReached:                "reached",
	KindCarrierStatus:          "carrier_status",
	KindTripStatus:             "trip_status",
	KindPeripheralAck:          "peripheral_ack",
	KindResourceAccess:         "resource_access",
	KindDeleteOngoingTrip:      "delete_ongoing_trip",
	KindDeleteBookedTrip:       "delete_booked_trip",
	KindInductCarrier:          "induct_carrier",
	KindTriggerOptimalDispatch: "trigger_optimal_dispatch",
	KindAssignNextTask:         "assign_next_task",
	KindHealthCheck:            "health_check",
	KindCommandAck:             "command_ack",
	KindContinueLeg:            "continue_leg",
	KindCarrierMode:            "carrier_mode",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a wire name to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Kinds returns every known kind.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames))
	for k := KindBook; k <= KindCarrierMode; k++ {
		out = append(out, k)
	}
	return out
}

// lane is the queue family a kind is processed on.
type lane int

const (
	laneCarrier lane = iota
	laneResource
	laneHealth
	laneMisc
)

func (k Kind) lane() lane {
	switch k {
	case KindReached, KindCarrierStatus, KindTripStatus, KindPeripheralAck,
		KindInductCarrier, KindAssignNextTask, KindCommandAck:
		return laneCarrier
	case KindResourceAccess:
		return laneResource
	case KindHealthCheck:
		return laneHealth
	}
	return laneMisc
}
