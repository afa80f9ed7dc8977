// Package events defines the events emitted on the event bus by the dispatch
// core.
//
// Available event types:
//   - RedispatchNeeded: a fleet changed in a way that can alter the matching
//   - TripEvent: a trip changed status
//   - AssignmentEvent: a dispatch cycle paired a trip with a carrier
//   - VisaEvent: a zone access request was granted, queued or released
//   - CarrierDisconnected: a carrier lost its heartbeat
package events
