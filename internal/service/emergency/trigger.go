package emergency

import (
	"context"
	"fmt"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/repository/registry"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// TriggerEmergency creates an active alert and runs response initiation.
// Collaborator failures during initiation are logged and never abort creation.
func (s *Service) TriggerEmergency(ctx context.Context, trigger *alert.Trigger) (*alert.Alert, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	id := s.newID()
	ctx = logger.WithFields(ctx, "alert_id", id, "subject_id", trigger.SubjectID)

	phoneNumber := trigger.PhoneNumber
	if phoneNumber == "" {
		phoneNumber = trigger.Metadata.PhoneNumber
	}

	hint := trigger.Hint
	if hint == nil {
		hint = trigger.Metadata.Carrier
	}

	fix := s.initialFix(ctx, trigger, phoneNumber, hint)
	address := s.address(ctx, fix)

	metadata := trigger.Metadata.Clone()
	metadata.PhoneNumber = phoneNumber

	if metadata.Carrier == nil && hint != nil {
		h := *hint
		metadata.Carrier = &h
	}

	now := s.now()
	a := &alert.Alert{
		ID:        id,
		SubjectID: trigger.SubjectID,
		Trigger:   trigger.Kind,
		State:     alert.StateActive,
		Location:  fix.Location(address),
		Metadata:  metadata,
		Evidence:  []alert.Evidence{},
		CreatedAt: now,
	}
	a.Record(now, alert.EventTriggered, map[string]any{
		"trigger":           string(trigger.Kind),
		"source_confidence": string(fix.Confidence),
	})

	entry, ok := s.registry.Put(a)
	if !ok {
		return nil, fmt.Errorf("register alert %s: duplicate id", id)
	}

	entry.Lock()
	snapshot := a.Clone()
	entry.Unlock()

	s.metrics.AlertTriggered(trigger.Kind)
	s.metrics.ActiveAlerts(s.registry.Len())
	s.publish(alert.EventTypeTriggered, snapshot)

	logger.InfoKV(ctx, "Emergency triggered",
		"trigger", trigger.Kind,
		"source_confidence", fix.Confidence,
		"accuracy", fix.Accuracy,
	)

	return s.initiateResponse(ctx, entry, snapshot), nil
}

// initialFix prefers a location supplied with the trigger and otherwise resolves one.
func (s *Service) initialFix(
	ctx context.Context,
	trigger *alert.Trigger,
	phoneNumber string,
	hint *alert.CarrierHint,
) alert.Fix {
	if trigger.Location != nil {
		fix := *trigger.Location
		if fix.Confidence == "" {
			fix.Confidence = alert.ConfidenceDevice
		}

		if fix.Timestamp.IsZero() {
			fix.Timestamp = s.now()
		}

		s.metrics.LocationResolved(fix.Confidence)

		return fix
	}

	fix, err := s.resolver.Resolve(ctx, location.Subject{ID: trigger.SubjectID, PhoneNumber: phoneNumber}, hint)
	if err != nil {
		// Only an empty static table gets here; the alert is still created.
		logger.ErrorKV(ctx, "Location resolution failed", "error", err)

		return alert.Fix{Timestamp: s.now()}
	}

	s.metrics.LocationResolved(fix.Confidence)

	return fix
}

// address reverse-geocodes a fix, returning an empty address on failure.
func (s *Service) address(ctx context.Context, fix alert.Fix) string {
	if fix.Confidence == "" {
		return ""
	}

	address, err := s.geocoder.ReverseGeocode(ctx, fix.Latitude, fix.Longitude)
	if err != nil {
		s.upstreamFailed(ctx, "geocoder", err)

		return ""
	}

	return address
}

// initiateResponse fetches contacts, notifies, starts tracking and capture,
// records the initiation and arms escalation. The published snapshot is never modified.
func (s *Service) initiateResponse(ctx context.Context, entry *registry.Entry, snapshot *alert.Alert) *alert.Alert {
	contacts, err := s.contacts.EmergencyContacts(ctx, snapshot.SubjectID)
	if err != nil {
		s.upstreamFailed(ctx, "contacts", err)
	}

	contacts = contacts.Disjoint()

	outgoing := snapshot.Clone()
	outgoing.Contacts = contacts.Clone()

	s.dispatch(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.SendEmergencyAlerts(ctx, outgoing)
	})
	s.dispatch(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.NotifyAuthorities(ctx, outgoing)
	})

	if err = s.tracking.StartTracking(ctx, outgoing.ID, outgoing.SubjectID); err != nil {
		s.upstreamFailed(ctx, "tracking", err)
	}

	if err = s.capture.StartCapture(ctx, outgoing.ID, outgoing.SubjectID); err != nil {
		s.upstreamFailed(ctx, "capture", err)
	}

	notified := len(contacts.Emergency) + len(contacts.Trusted) + len(contacts.Authorities)

	entry.Lock()

	if entry.Alert.State.Terminal() {
		// Resolved while initiating; undo the side effects started above.
		result := entry.Alert.Clone()
		entry.Unlock()

		s.stopResponse(ctx, result)

		return result
	}

	entry.Alert.Contacts = contacts
	entry.Alert.Record(s.now(), alert.EventResponseInitiated, map[string]any{
		"contacts_notified": notified,
	})
	result := entry.Alert.Clone()

	entry.Unlock()

	// Armed without the alert lock: a firing callback takes it.
	s.scheduler.Arm(result.ID, s.responseTimeout, s.escalateCallback)

	entry.Lock()
	closed := entry.Alert.State.Terminal()
	entry.Unlock()

	if closed {
		// Terminated between recording and arming, so its Disarm came too early.
		s.scheduler.Disarm(result.ID)
	}

	logger.InfoKV(ctx, "Emergency response initiated", "contacts_notified", notified)

	return result
}

// escalateCallback is the scheduler callback of every alert.
func (s *Service) escalateCallback(ctx context.Context, alertID string) error {
	return s.Escalate(ctx, alertID)
}
