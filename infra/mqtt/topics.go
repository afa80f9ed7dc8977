package mqtt

import "strings"

// DefaultPrefix is the root of every topic.
const DefaultPrefix = "fleet"

// CommandTopic is where commands for carrier are published.
func CommandTopic(prefix, carrier string) string {
	return prefix + "/carrier/" + carrier + "/command"
}

// CarrierTopic is the subscription filter for kind reported by any carrier.
func CarrierTopic(prefix, kind string) string {
	return prefix + "/carrier/+/" + kind
}

// ReportTopic is where carrier publishes kind.
func ReportTopic(prefix, carrier, kind string) string {
	return prefix + "/carrier/" + carrier + "/" + kind
}

// ClientTopic is where client applications publish kind.
func ClientTopic(prefix, kind string) string {
	return prefix + "/client/" + kind
}

// NotificationTopic is where notifications of module are published.
func NotificationTopic(prefix, module string) string {
	return prefix + "/notification/" + module
}

// carrierOf extracts the carrier name from a carrier topic.
func carrierOf(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/carrier/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	return name, ok && name != ""
}
