package events

// RedispatchNeeded asks the dispatch engine to run a cycle for Fleet.
type RedispatchNeeded struct {
	Fleet string
}

// CarrierDisconnected is published when the health monitor disables a carrier
// for a stale heartbeat.
type CarrierDisconnected struct {
	Carrier string
	Fleet   string
}

// VisaEvent reports the outcome of a zone access request. Result is one of
// "granted", "denied" or "released".
type VisaEvent struct {
	Carrier string
	Zones   []string
	Result  string
	Reason  string
}
