// Package emergency implements the alert lifecycle engine.
//
// The Service owns the state machine of every in-flight alert: it creates
// alerts from triggers, runs response initiation, applies location and
// evidence updates, escalates on timeout and hands terminal alerts to the
// archive. Mutations of one alert are serialised by its registry entry lock,
// which is never held across collaborator I/O. Lifecycle changes are
// published as typed events on a channel bus.
package emergency
