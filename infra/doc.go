// Package infra holds the adapters behind the core interfaces: the MQTT
// transport, Prometheus and InfluxDB metrics, zerolog logging and Sentry
// monitoring.
package infra
