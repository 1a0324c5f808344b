// Package metrics exposes engine counters and gauges in Prometheus format.
// Collectors live on a private registry so tests can create independent instances.
package metrics
