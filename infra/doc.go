// Package infra holds the technical adapters: hardware backends, the
// InfluxDB forecast and recording clients, file stores and metrics.
// These packages depend only on interfaces defined under core.
package infra
