// Package httpapi exposes the emergency engine over HTTP: a JSON REST API
// for alerts, the USSD gateway webhook, device location reports, the event
// WebSocket, Prometheus metrics and a health probe.
package httpapi
