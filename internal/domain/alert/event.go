package alert

import "time"

// EventType is the kind of lifecycle change published to subscribers.
type EventType string

// Published event types.
const (
	EventTypeTriggered       EventType = "triggered"
	EventTypeLocationUpdated EventType = "location_updated"
	EventTypeEscalated       EventType = "escalated"
	EventTypeResolved        EventType = "resolved"
)

// Event is a typed lifecycle notification carrying a snapshot of the alert.
// Resolved events cover both resolution and false alarms; Alert.State tells them apart.
type Event struct {
	Type  EventType `json:"type"`
	At    time.Time `json:"at"`
	Alert *Alert    `json:"alert"`
}
