// Package metrics defines the analytics records of the control plane:
// dispatch cycles, trip and leg transitions, zone visas, carrier commands
// and connectivity. A sink implements MetricsSink and any subset of the
// optional recorders; the Record helpers skip sinks that lack one.
package metrics
