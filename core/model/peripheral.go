package model

import "strings"

// WaitState is a set of peripheral wait-states armed on an ongoing trip.
type WaitState uint16

const (
	WaitDispatchStart WaitState = 1 << iota
	WaitHitchStart
	WaitHitchEnd
	WaitUnhitchStart
	WaitUnhitchEnd
	WaitConveyorSendStart
	WaitConveyorSendEnd
	WaitConveyorReceiveStart
	WaitConveyorReceiveEnd
)

var waitNames = []struct {
	w    WaitState
	name string
}{
	{WaitDispatchStart, "dispatch_start"},
	{WaitHitchStart, "auto_hitch_start"},
	{WaitHitchEnd, "auto_hitch_end"},
	{WaitUnhitchStart, "auto_unhitch_start"},
	{WaitUnhitchEnd, "auto_unhitch_end"},
	{WaitConveyorSendStart, "conveyor_send_start"},
	{WaitConveyorSendEnd, "conveyor_send_end"},
	{WaitConveyorReceiveStart, "conveyor_receive_start"},
	{WaitConveyorReceiveEnd, "conveyor_receive_end"},
}

func (w WaitState) Has(s WaitState) bool      { return s != 0 && w&s == s }
func (w WaitState) Arm(s WaitState) WaitState { return w | s }
func (w WaitState) Clear(s WaitState) WaitState {
	return w &^ s
}
func (w WaitState) Empty() bool { return w == 0 }

func (w WaitState) String() string {
	if w == 0 {
		return "none"
	}
	var parts []string
	for _, n := range waitNames {
		if w.Has(n.w) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// Device is a peripheral a carrier interacts with at a station.
type Device string

const (
	DeviceDispatchButton  Device = "dispatch_button"
	DeviceAutoHitch       Device = "auto_hitch"
	DeviceAutoUnhitch     Device = "auto_unhitch"
	DeviceConveyorSend    Device = "conveyor_send"
	DeviceConveyorReceive Device = "conveyor_receive"
)

// Phase of a peripheral acknowledgement.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// Waits returns the start and end wait-states of a device. The dispatch
// button has no end state: a press completes it.
func (d Device) Waits() (start, end WaitState, ok bool) {
	switch d {
	case DeviceDispatchButton:
		return WaitDispatchStart, 0, true
	case DeviceAutoHitch:
		return WaitHitchStart, WaitHitchEnd, true
	case DeviceAutoUnhitch:
		return WaitUnhitchStart, WaitUnhitchEnd, true
	case DeviceConveyorSend:
		return WaitConveyorSendStart, WaitConveyorSendEnd, true
	case DeviceConveyorReceive:
		return WaitConveyorReceiveStart, WaitConveyorReceiveEnd, true
	}
	return 0, 0, false
}
