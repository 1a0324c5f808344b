package alert

import (
	"maps"
	"time"
)

// EventKind names a timeline entry.
type EventKind string

// Timeline event kinds.
const (
	EventTriggered         EventKind = "emergency_triggered"
	EventResponseInitiated EventKind = "emergency_response_initiated"
	EventLocationUpdated   EventKind = "location_updated"
	EventEvidenceAdded     EventKind = "evidence_added"
	EventEscalated         EventKind = "emergency_escalated"
	EventResolved          EventKind = "emergency_resolved"
	EventFalseAlarm        EventKind = "emergency_false_alarm"
)

// TimelineEntry is one record of the audit trail.
type TimelineEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Event     EventKind      `json:"event"`
	Details   map[string]any `json:"details,omitempty"`
}

// Clone returns a copy of the entry. Detail values are scalars and are shared.
func (e TimelineEntry) Clone() TimelineEntry {
	e.Details = maps.Clone(e.Details)

	return e
}

// ReplayStates derives the state transition history from a timeline.
// The first element is always StateActive for a non-empty timeline.
func ReplayStates(timeline []TimelineEntry) []State {
	var states []State

	for _, entry := range timeline {
		switch entry.Event {
		case EventTriggered:
			states = append(states, StateActive)
		case EventEscalated:
			states = append(states, StateEscalated)
		case EventResolved:
			states = append(states, StateResolved)
		case EventFalseAlarm:
			states = append(states, StateFalseAlarm)
		case EventResponseInitiated, EventLocationUpdated, EventEvidenceAdded:
			// Side effects, not transitions.
		}
	}

	return states
}
