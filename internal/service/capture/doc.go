// Package capture instructs the subject's devices to start and stop recording
// evidence while an alert is in flight.
package capture
