package emergency

import (
	"context"
	"fmt"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// escalationReason is recorded when the response timer expires.
const escalationReason = "no_response_timeout"

// UpdateLocation overwrites the location of an active or escalated alert.
func (s *Service) UpdateLocation(ctx context.Context, id string, fix alert.Fix) (*alert.Alert, error) {
	if !fix.ValidCoordinates() {
		return nil, fmt.Errorf("%w: location out of range", alert.ErrInvalidTrigger)
	}

	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx, "alert_id", id)

	if fix.Confidence == "" {
		fix.Confidence = alert.ConfidenceDevice
	}

	if fix.Timestamp.IsZero() {
		fix.Timestamp = s.now()
	}

	address := s.address(ctx, fix)

	entry.Lock()

	if entry.Alert.State.Terminal() {
		entry.Unlock()

		return nil, fmt.Errorf("update location of %s: %w", id, alert.ErrAlreadyTerminal)
	}

	entry.Alert.Location = fix.Location(address)
	entry.Alert.Record(s.now(), alert.EventLocationUpdated, map[string]any{
		"latitude":          fix.Latitude,
		"longitude":         fix.Longitude,
		"accuracy":          fix.Accuracy,
		"source_confidence": string(fix.Confidence),
	})
	snapshot := entry.Alert.Clone()

	entry.Unlock()

	s.metrics.LocationResolved(fix.Confidence)
	s.publish(alert.EventTypeLocationUpdated, snapshot)
	s.dispatch(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.BroadcastLocationUpdate(ctx, snapshot)
	})

	logger.DebugKV(ctx, "Location updated", "source_confidence", fix.Confidence, "accuracy", fix.Accuracy)

	return snapshot, nil
}

// AddEvidence stores a capture through the ledger and records it on the alert.
// The ledger call runs without the alert lock; if the alert went terminal
// meanwhile the stored item is kept by the ledger but not attached.
func (s *Service) AddEvidence(ctx context.Context, id string, c evidence.Capture) (alert.Evidence, error) {
	if err := c.Validate(); err != nil {
		return alert.Evidence{}, err
	}

	entry, err := s.lookup(id)
	if err != nil {
		return alert.Evidence{}, err
	}

	ctx = logger.WithFields(ctx, "alert_id", id)

	entry.Lock()
	terminal := entry.Alert.State.Terminal()
	entry.Unlock()

	if terminal {
		return alert.Evidence{}, fmt.Errorf("add evidence to %s: %w", id, alert.ErrAlreadyTerminal)
	}

	item, err := s.ledger.Append(ctx, id, c)
	if err != nil {
		logger.WarnKV(ctx, "Evidence append failed", "kind", c.Kind, "error", err)

		return alert.Evidence{}, fmt.Errorf("add evidence to %s: %w", id, err)
	}

	entry.Lock()

	if entry.Alert.State.Terminal() {
		entry.Unlock()

		logger.WarnKV(ctx, "Evidence stored after alert terminated", "storage_ref", item.StorageRef)

		return alert.Evidence{}, fmt.Errorf("add evidence to %s: %w", id, alert.ErrAlreadyTerminal)
	}

	entry.Alert.Evidence = append(entry.Alert.Evidence, item)
	entry.Alert.Record(s.now(), alert.EventEvidenceAdded, map[string]any{
		"kind":        string(item.Kind),
		"storage_ref": item.StorageRef,
		"tamper_hash": item.TamperHash,
	})

	entry.Unlock()

	s.metrics.EvidenceAppended(item.Kind)

	logger.InfoKV(ctx, "Evidence added", "kind", item.Kind, "storage_ref", item.StorageRef)

	return item, nil
}

// Escalate moves an active alert to escalated and re-notifies authorities.
// It is a silent no-op for alerts that already left the active state or the registry.
func (s *Service) Escalate(ctx context.Context, id string) error {
	entry, ok := s.registry.Get(id)
	if !ok {
		return nil
	}

	ctx = logger.WithFields(ctx, "alert_id", id)

	entry.Lock()

	if entry.Alert.State != alert.StateActive {
		entry.Unlock()

		return nil
	}

	entry.Alert.State = alert.StateEscalated
	entry.Alert.Record(s.now(), alert.EventEscalated, map[string]any{
		"reason": escalationReason,
	})
	snapshot := entry.Alert.Clone()

	entry.Unlock()

	s.metrics.AlertTransitioned(alert.StateEscalated)
	s.publish(alert.EventTypeEscalated, snapshot)
	s.dispatch(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.EscalateToAuthorities(ctx, snapshot)
	})
	s.dispatch(ctx, "voice caller", func(ctx context.Context) error {
		return s.caller.MakeEmergencyCalls(ctx, snapshot)
	})

	logger.WarnKV(ctx, "Emergency escalated", "reason", escalationReason)

	return nil
}

// ResolveEmergency resolves an active or escalated alert.
func (s *Service) ResolveEmergency(ctx context.Context, id, resolvedBy, reason string) (*alert.Alert, error) {
	return s.terminate(ctx, id, alert.StateResolved, resolvedBy, reason)
}

// MarkFalseAlarm closes an active or escalated alert as a false alarm.
func (s *Service) MarkFalseAlarm(ctx context.Context, id, markedBy, reason string) (*alert.Alert, error) {
	return s.terminate(ctx, id, alert.StateFalseAlarm, markedBy, reason)
}

// terminate moves an alert to a terminal state, stops its side effects,
// archives it and removes it from the registry.
func (s *Service) terminate(ctx context.Context, id string, state alert.State, by, reason string) (*alert.Alert, error) {
	entry, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithFields(ctx, "alert_id", id)

	event := alert.EventResolved
	if state == alert.StateFalseAlarm {
		event = alert.EventFalseAlarm
	}

	entry.Lock()

	if entry.Alert.State.Terminal() {
		entry.Unlock()

		return nil, fmt.Errorf("%s %s: %w", state, id, alert.ErrAlreadyTerminal)
	}

	entry.Alert.State = state
	entry.Alert.Record(s.now(), event, map[string]any{
		"by":     by,
		"reason": reason,
	})
	snapshot := entry.Alert.Clone()

	entry.Unlock()

	s.tombstones.Add(id, state)

	// Disarm waits for a running escalation, which needs the alert lock released above.
	s.stopResponse(ctx, snapshot)

	if err = s.archive.Save(ctx, snapshot); err != nil {
		s.upstreamFailed(ctx, "archive", err)
	}

	s.ledger.Forget(id)
	s.registry.Remove(id)

	s.metrics.AlertTransitioned(state)
	s.metrics.ActiveAlerts(s.registry.Len())
	s.publish(alert.EventTypeResolved, snapshot)
	s.dispatch(ctx, "notifier", func(ctx context.Context) error {
		return s.notifier.SendResolutionNotifications(ctx, snapshot)
	})

	logger.InfoKV(ctx, "Emergency closed", "state", state, "by", by, "reason", reason)

	return snapshot, nil
}

// stopResponse disarms escalation and stops tracking and capture.
func (s *Service) stopResponse(ctx context.Context, a *alert.Alert) {
	s.scheduler.Disarm(a.ID)

	if err := s.tracking.StopTracking(ctx, a.ID); err != nil {
		s.upstreamFailed(ctx, "tracking", err)
	}

	if err := s.capture.StopCapture(ctx, a.ID, a.SubjectID); err != nil {
		s.upstreamFailed(ctx, "capture", err)
	}
}
