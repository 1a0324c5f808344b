package emergency

import (
	"context"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/escalation"
	"github.com/oshokin/sos-engine/internal/service/evidence"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// ContactsProvider returns the parties to reach for a subject.
type ContactsProvider interface {
	EmergencyContacts(ctx context.Context, subjectID string) (alert.Contacts, error)
}

// Notifier delivers alert notifications. Calls are fire-and-forget from the engine.
type Notifier interface {
	SendEmergencyAlerts(ctx context.Context, a *alert.Alert) error
	NotifyAuthorities(ctx context.Context, a *alert.Alert) error
	EscalateToAuthorities(ctx context.Context, a *alert.Alert) error
	BroadcastLocationUpdate(ctx context.Context, a *alert.Alert) error
	SendResolutionNotifications(ctx context.Context, a *alert.Alert) error
}

// TrackingController starts and stops continuous location tracking.
type TrackingController interface {
	StartTracking(ctx context.Context, alertID, subjectID string) error
	StopTracking(ctx context.Context, alertID string) error
}

// CaptureController starts and stops evidence capture on the subject's devices.
type CaptureController interface {
	StartCapture(ctx context.Context, alertID, subjectID string) error
	StopCapture(ctx context.Context, alertID, subjectID string) error
}

// EvidenceLedger appends evidence items.
type EvidenceLedger interface {
	Append(ctx context.Context, alertID string, c evidence.Capture) (alert.Evidence, error)
	// Forget releases per-alert state once the alert is archived.
	Forget(alertID string)
}

// LocationResolver resolves the best available fix for a subject.
type LocationResolver interface {
	Resolve(ctx context.Context, subject location.Subject, hint *alert.CarrierHint) (alert.Fix, error)
}

// Geocoder turns coordinates into a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (string, error)
}

// VoiceCaller places the emergency call sequence.
type VoiceCaller interface {
	MakeEmergencyCalls(ctx context.Context, a *alert.Alert) error
}

// Archiver persists terminal alerts.
type Archiver interface {
	Save(ctx context.Context, a *alert.Alert) error
	Load(ctx context.Context, id string) (*alert.Alert, error)
}

// SubjectDirectory maps phone numbers to subjects.
type SubjectDirectory interface {
	SubjectByPhone(ctx context.Context, phoneNumber string) (string, bool)
}

// Scheduler arms per-alert escalation timers.
type Scheduler interface {
	Arm(alertID string, after time.Duration, callback escalation.Callback)
	Disarm(alertID string) bool
}

// Metrics records engine activity.
type Metrics interface {
	AlertTriggered(kind alert.TriggerKind)
	AlertTransitioned(state alert.State)
	LocationResolved(confidence alert.Confidence)
	EvidenceAppended(kind alert.EvidenceKind)
	UpstreamFailed(collaborator string)
	ActiveAlerts(n int)
}

// nopCollaborators stands in for every optional collaborator that is not configured.
type nopCollaborators struct{}

func (nopCollaborators) EmergencyContacts(context.Context, string) (alert.Contacts, error) {
	return alert.Contacts{}, nil
}

func (nopCollaborators) SendEmergencyAlerts(context.Context, *alert.Alert) error         { return nil }
func (nopCollaborators) NotifyAuthorities(context.Context, *alert.Alert) error           { return nil }
func (nopCollaborators) EscalateToAuthorities(context.Context, *alert.Alert) error       { return nil }
func (nopCollaborators) BroadcastLocationUpdate(context.Context, *alert.Alert) error     { return nil }
func (nopCollaborators) SendResolutionNotifications(context.Context, *alert.Alert) error { return nil }
func (nopCollaborators) StartTracking(context.Context, string, string) error             { return nil }
func (nopCollaborators) StopTracking(context.Context, string) error                      { return nil }
func (nopCollaborators) StartCapture(context.Context, string, string) error              { return nil }
func (nopCollaborators) StopCapture(context.Context, string, string) error               { return nil }
func (nopCollaborators) MakeEmergencyCalls(context.Context, *alert.Alert) error          { return nil }
func (nopCollaborators) Save(context.Context, *alert.Alert) error                        { return nil }

func (nopCollaborators) Load(context.Context, string) (*alert.Alert, error) {
	return nil, alert.ErrNotFound
}

func (nopCollaborators) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", nil
}

func (nopCollaborators) SubjectByPhone(context.Context, string) (string, bool) { return "", false }
func (nopCollaborators) AlertTriggered(alert.TriggerKind)                      {}
func (nopCollaborators) AlertTransitioned(alert.State)                         {}
func (nopCollaborators) LocationResolved(alert.Confidence)                     {}
func (nopCollaborators) EvidenceAppended(alert.EvidenceKind)                   {}
func (nopCollaborators) UpstreamFailed(string)                                 {}
func (nopCollaborators) ActiveAlerts(int)                                      {}
