package alert

import (
	"maps"
	"slices"
	"time"
)

// TriggerKind identifies what raised an alert.
type TriggerKind string

// Supported trigger kinds.
const (
	TriggerPanicButton  TriggerKind = "panic_button"
	TriggerVoiceCommand TriggerKind = "voice_command"
	TriggerGesture      TriggerKind = "gesture"
	TriggerUSSD         TriggerKind = "ussd"
	TriggerWearable     TriggerKind = "wearable"
	TriggerAutoDetected TriggerKind = "auto_detected"
)

// Valid reports whether the kind is one of the supported triggers.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerPanicButton, TriggerVoiceCommand, TriggerGesture,
		TriggerUSSD, TriggerWearable, TriggerAutoDetected:
		return true
	default:
		return false
	}
}

// State is the lifecycle state of an alert.
type State string

// Alert states.
const (
	StateActive     State = "active"
	StateEscalated  State = "escalated"
	StateResolved   State = "resolved"
	StateFalseAlarm State = "false_alarm"
)

// Terminal reports whether no further transitions are accepted.
// Escalated is a display state that still accepts resolution.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateFalseAlarm
}

// Confidence is the trust tier of a location fix.
type Confidence string

// Confidence tiers, strongest first.
const (
	ConfidenceDevice   Confidence = "device"
	ConfidenceOperator Confidence = "operator"
	ConfidenceStatic   Confidence = "static"
)

// Rank orders tiers so that a higher value means a more trustworthy fix.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceDevice:
		return 3
	case ConfidenceOperator:
		return 2
	case ConfidenceStatic:
		return 1
	default:
		return 0
	}
}

// Fix is a single location reading produced by one of the resolution tiers.
type Fix struct {
	// Latitude in decimal degrees.
	Latitude float64 `json:"latitude"`
	// Longitude in decimal degrees.
	Longitude float64 `json:"longitude"`
	// Accuracy is the radius of uncertainty in meters.
	Accuracy float64 `json:"accuracy"`
	// CellID is the serving cell reported by a carrier, if any.
	CellID string `json:"cell_id,omitempty"`
	// LAC is the location area code reported by a carrier, if any.
	LAC string `json:"lac,omitempty"`
	// MCC is the mobile country code of the carrier.
	MCC string `json:"mcc,omitempty"`
	// MNC is the mobile network code of the carrier.
	MNC string `json:"mnc,omitempty"`
	// Timestamp is when the fix was taken.
	Timestamp time.Time `json:"timestamp"`
	// Confidence is the tier that produced the fix.
	Confidence Confidence `json:"source_confidence"`
}

// ValidCoordinates reports whether latitude and longitude are within range.
func (f Fix) ValidCoordinates() bool {
	return f.Latitude >= -90 && f.Latitude <= 90 &&
		f.Longitude >= -180 && f.Longitude <= 180 &&
		f.Accuracy >= 0
}

// Location folds the fix into an alert location with the given address.
func (f Fix) Location(address string) Location {
	return Location{
		Latitude:   f.Latitude,
		Longitude:  f.Longitude,
		Accuracy:   f.Accuracy,
		Address:    address,
		Timestamp:  f.Timestamp,
		Confidence: f.Confidence,
	}
}

// Location is the latest known position of the subject.
type Location struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Accuracy   float64    `json:"accuracy"`
	Address    string     `json:"address,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Confidence Confidence `json:"source_confidence"`
}

// CarrierHint carries the declared network operator and telecom circle.
type CarrierHint struct {
	// Operator is the declared network operator (jio, airtel, vi, bsnl).
	Operator string `json:"operator,omitempty"`
	// Circle is the coarse administrative region code.
	Circle string `json:"circle,omitempty"`
}

// Metadata is the triggering context. It is set once at creation.
type Metadata struct {
	// VoiceCommand is the transcript that matched an emergency phrase.
	VoiceCommand string `json:"voice_command,omitempty"`
	// Language of the voice command.
	Language string `json:"language,omitempty"`
	// Confidence is the collaborator's confidence score, passed through unchanged.
	Confidence *float64 `json:"confidence,omitempty"`
	// StressLevel is the collaborator's stress score, passed through unchanged.
	StressLevel *float64 `json:"stress_level,omitempty"`
	// PhoneNumber of the subject, when known.
	PhoneNumber string `json:"phone_number,omitempty"`
	// Carrier is the declared carrier context.
	Carrier *CarrierHint `json:"carrier,omitempty"`
	// NetworkBased marks triggers whose location came from the network.
	NetworkBased bool `json:"network_based,omitempty"`
	// Extra holds any other free-form context.
	Extra map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m Metadata) Clone() Metadata {
	cloned := m

	if m.Confidence != nil {
		v := *m.Confidence
		cloned.Confidence = &v
	}

	if m.StressLevel != nil {
		v := *m.StressLevel
		cloned.StressLevel = &v
	}

	if m.Carrier != nil {
		c := *m.Carrier
		cloned.Carrier = &c
	}

	cloned.Extra = maps.Clone(m.Extra)

	return cloned
}

// EvidenceKind is the media type of an evidence item.
type EvidenceKind string

// Evidence kinds.
const (
	EvidenceAudio EvidenceKind = "audio"
	EvidenceVideo EvidenceKind = "video"
	EvidenceImage EvidenceKind = "image"
)

// Valid reports whether the kind is supported.
func (k EvidenceKind) Valid() bool {
	return k == EvidenceAudio || k == EvidenceVideo || k == EvidenceImage
}

// Evidence is an immutable reference to captured media.
type Evidence struct {
	Kind       EvidenceKind `json:"kind"`
	StorageRef string       `json:"storage_ref"`
	TamperHash string       `json:"tamper_hash"`
	CapturedAt time.Time    `json:"captured_at"`
}

// Contacts are the parties reached during response initiation.
type Contacts struct {
	// Emergency numbers such as 112.
	Emergency []string `json:"emergency"`
	// Trusted are personal contacts of the subject.
	Trusted []string `json:"trusted"`
	// Authorities are police, NGO or dispatch endpoints.
	Authorities []string `json:"authorities"`
}

// Disjoint removes duplicates so that every contact appears in exactly one set.
// Authorities take priority over emergency numbers, which take priority over trusted contacts.
func (c Contacts) Disjoint() Contacts {
	seen := make(map[string]struct{})

	keep := func(in []string) []string {
		out := make([]string, 0, len(in))

		for _, v := range in {
			if v == "" {
				continue
			}

			if _, ok := seen[v]; ok {
				continue
			}

			seen[v] = struct{}{}
			out = append(out, v)
		}

		return out
	}

	authorities := keep(c.Authorities)
	emergency := keep(c.Emergency)
	trusted := keep(c.Trusted)

	return Contacts{
		Emergency:   emergency,
		Trusted:     trusted,
		Authorities: authorities,
	}
}

// Clone returns a deep copy of the contacts.
func (c Contacts) Clone() Contacts {
	return Contacts{
		Emergency:   slices.Clone(c.Emergency),
		Trusted:     slices.Clone(c.Trusted),
		Authorities: slices.Clone(c.Authorities),
	}
}

// Alert is the stateful record of one emergency.
type Alert struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`
	// SubjectID identifies the person in danger.
	SubjectID string `json:"subject_id"`
	// Trigger is what raised the alert.
	Trigger TriggerKind `json:"trigger"`
	// State is the current lifecycle state.
	State State `json:"state"`
	// Location is the latest known fix, overwritten on every update.
	Location Location `json:"location"`
	// Metadata is the triggering context.
	Metadata Metadata `json:"metadata"`
	// Evidence is the append-only list of captured media.
	Evidence []Evidence `json:"evidence"`
	// Contacts are populated once during response initiation.
	Contacts Contacts `json:"contacts"`
	// Timeline is the append-only audit trail.
	Timeline []TimelineEntry `json:"timeline"`
	// CreatedAt is when the alert was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is bumped on every mutation.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the alert to avoid leaking internal references.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}

	cloned := *a
	cloned.Metadata = a.Metadata.Clone()
	cloned.Evidence = slices.Clone(a.Evidence)
	cloned.Contacts = a.Contacts.Clone()
	cloned.Timeline = make([]TimelineEntry, len(a.Timeline))

	for i, entry := range a.Timeline {
		cloned.Timeline[i] = entry.Clone()
	}

	return &cloned
}

// Record appends a timeline entry and bumps UpdatedAt.
func (a *Alert) Record(at time.Time, event EventKind, details map[string]any) {
	a.Timeline = append(a.Timeline, TimelineEntry{
		Timestamp: at,
		Event:     event,
		Details:   details,
	})
	a.UpdatedAt = at
}
