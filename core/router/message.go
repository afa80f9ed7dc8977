package router

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/fleetcore/core/model"
	"github.com/kilianp07/fleetcore/core/trip"
)

// Message is a decoded inbound event. Carrier is set for messages processed
// on a carrier's ordered queue.
type Message struct {
	Kind     Kind
	Source   string
	Carrier  string
	Payload  any
	Received time.Time
}

// PeripheralAck reports a station side action.
type PeripheralAck struct {
	Device model.Device `json:"device"`
	Phase  model.Phase  `json:"phase"`
}

// Visa types of a ResourceAccess message.
const (
	VisaRequest = "request"
	VisaRelease = "release"
)

// ResourceAccess asks for or gives back a zone visa.
type ResourceAccess struct {
	ZoneID    string `json:"zone_id"`
	ZoneName  string `json:"zone_name"`
	VisaType  string `json:"visa_type"`
	Exclusive bool   `json:"exclusive"`
}

// DeleteTrip identifies a trip by id or booking id.
type DeleteTrip struct {
	TripID    int64  `json:"trip_id"`
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

// InductCarrier toggles a carrier's induction.
type InductCarrier struct {
	Carrier string `json:"carrier_name"`
	Induct  bool   `json:"induct"`
}

// AssignNextTask asks the task assigner to evaluate a carrier.
type AssignNextTask struct {
	Carrier string `json:"carrier_name"`
}

// TriggerOptimalDispatch asks for a dispatch cycle of a fleet.
type TriggerOptimalDispatch struct {
	Fleet string `json:"fleet_name"`
}

// CommandAck acknowledges an outbound command.
type CommandAck struct {
	CommandID string `json:"command_id"`
}

// ContinueLeg asks a stopped carrier to resume its open leg.
type ContinueLeg struct {
	Carrier string `json:"carrier_name"`
}

// CarrierMode switches an operator mode of a carrier. Enabling a mode takes
// the carrier out of service, disabling it puts the carrier back.
type CarrierMode struct {
	Carrier string              `json:"carrier_name"`
	Mode    model.DisableReason `json:"mode"`
	Enabled bool                `json:"enabled"`
}

// Decode builds a Message from a JSON payload. carrier is empty for client
// messages.
func Decode(kind Kind, source, carrier string, data []byte) (Message, error) {
	m := Message{Kind: kind, Source: source, Carrier: carrier, Received: time.Now()}
	var err error
	switch kind {
	case KindBook:
		var p trip.Booking
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindReached:
		var p trip.Reached
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindCarrierStatus:
		var p model.CarrierStatus
		err = json.Unmarshal(data, &p)
		p.Carrier = carrier
		m.Payload = p
	case KindTripStatus:
		var p trip.LegReport
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindPeripheralAck:
		var p PeripheralAck
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindResourceAccess:
		var p ResourceAccess
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindDeleteOngoingTrip, KindDeleteBookedTrip:
		var p DeleteTrip
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindInductCarrier:
		var p InductCarrier
		err = json.Unmarshal(data, &p)
		if m.Carrier == "" {
			m.Carrier = p.Carrier
		}
		m.Payload = p
	case KindAssignNextTask:
		var p AssignNextTask
		if len(data) > 0 {
			err = json.Unmarshal(data, &p)
		}
		if m.Carrier == "" {
			m.Carrier = p.Carrier
		}
		m.Payload = p
	case KindTriggerOptimalDispatch:
		var p TriggerOptimalDispatch
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindCommandAck:
		var p CommandAck
		err = json.Unmarshal(data, &p)
		m.Payload = p
	case KindContinueLeg:
		var p ContinueLeg
		err = json.Unmarshal(data, &p)
		if m.Carrier == "" {
			m.Carrier = p.Carrier
		}
		m.Payload = p
	case KindCarrierMode:
		var p CarrierMode
		err = json.Unmarshal(data, &p)
		if m.Carrier == "" {
			m.Carrier = p.Carrier
		}
		m.Payload = p
	case KindHealthCheck:
	default:
		return Message{}, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	if err != nil {
		return Message{}, fmt.Errorf("decode %s: %w", kind, err)
	}
	if kind.lane() == laneCarrier && m.Carrier == "" {
		return Message{}, fmt.Errorf("decode %s: %w", kind, ErrNoCarrier)
	}
	return m, nil
}

// payload asserts the payload type of m.
func payload[T any](m Message) (T, error) {
	p, ok := m.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected payload %T", m.Kind, m.Payload)
	}
	return p, nil
}
