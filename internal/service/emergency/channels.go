package emergency

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// USSD gateway replies.
const (
	USSDReplyActivated   = "Emergency alert activated. Help is on the way."
	USSDReplyUnavailable = "Emergency service temporarily unavailable. Please call 112."
)

// builtinUSSDCodes are always accepted.
//
//nolint:gochecknoglobals // Immutable lookup table.
var builtinUSSDCodes = []string{"*555#", "112", "*112#"}

func ussdCodeSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(builtinUSSDCodes)+len(extra))

	for _, code := range slices.Concat(builtinUSSDCodes, extra) {
		if code = strings.TrimSpace(code); code != "" {
			set[code] = struct{}{}
		}
	}

	return set
}

// USSDRequest is an emergency USSD session forwarded by a carrier gateway.
type USSDRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"ussd_code"`
	SessionID   string `json:"session_id"`
	Operator    string `json:"operator"`
	Circle      string `json:"circle"`
}

// USSDResponse is the reply sent back to the gateway.
type USSDResponse struct {
	// Accepted reports whether an alert was created.
	Accepted bool `json:"accepted"`
	// AlertID is set when an alert was created.
	AlertID string `json:"alert_id,omitempty"`
	// Message is shown to the caller.
	Message string `json:"message"`
}

// HandleUSSDTrigger creates a ussd alert for the subject owning the calling number.
// The returned response is meaningful even when an error is returned.
func (s *Service) HandleUSSDTrigger(ctx context.Context, req USSDRequest) (USSDResponse, error) {
	ctx = logger.WithFields(ctx, "ussd_session_id", req.SessionID, "operator", req.Operator)

	unavailable := USSDResponse{Message: USSDReplyUnavailable}

	if _, ok := s.ussdCodes[strings.TrimSpace(req.Code)]; !ok {
		logger.WarnKV(ctx, "Invalid emergency USSD code", "code", req.Code)

		return unavailable, fmt.Errorf("%w: unsupported USSD code %q", alert.ErrInvalidTrigger, req.Code)
	}

	subjectID, ok := s.directory.SubjectByPhone(ctx, req.PhoneNumber)
	if !ok {
		logger.WarnKV(ctx, "USSD trigger received for unknown phone number", "phone_number", req.PhoneNumber)

		return unavailable, fmt.Errorf("ussd trigger from %s: %w", req.PhoneNumber, alert.ErrUnknownSubject)
	}

	hint := &alert.CarrierHint{Operator: req.Operator, Circle: req.Circle}

	a, err := s.TriggerEmergency(ctx, &alert.Trigger{
		SubjectID:   subjectID,
		Kind:        alert.TriggerUSSD,
		PhoneNumber: req.PhoneNumber,
		Hint:        hint,
		Metadata: alert.Metadata{
			PhoneNumber:  req.PhoneNumber,
			Carrier:      hint,
			NetworkBased: true,
			Extra: map[string]string{
				"ussd_code":       req.Code,
				"ussd_session_id": req.SessionID,
			},
		},
	})
	if err != nil {
		return unavailable, err
	}

	return USSDResponse{
		Accepted: true,
		AlertID:  a.ID,
		Message:  USSDReplyActivated,
	}, nil
}

// VoiceAnalysis is the verdict of the voice analysis collaborator.
// Thresholds are its policy; the engine only reads IsEmergency.
type VoiceAnalysis struct {
	IsEmergency bool     `json:"is_emergency"`
	Command     string   `json:"command"`
	Language    string   `json:"language"`
	Confidence  *float64 `json:"confidence,omitempty"`
	StressLevel *float64 `json:"stress_level,omitempty"`
}

// HandleVoiceTrigger creates a voice_command alert when the analysis reports an emergency.
// It returns a nil alert when the analysis does not.
func (s *Service) HandleVoiceTrigger(ctx context.Context, subjectID string, analysis VoiceAnalysis) (*alert.Alert, error) {
	if !analysis.IsEmergency {
		logger.DebugKV(ctx, "Voice command is not an emergency", "subject_id", subjectID)

		return nil, nil //nolint:nilnil // No alert is a valid outcome.
	}

	return s.TriggerEmergency(ctx, &alert.Trigger{
		SubjectID: subjectID,
		Kind:      alert.TriggerVoiceCommand,
		Metadata: alert.Metadata{
			VoiceCommand: analysis.Command,
			Language:     analysis.Language,
			Confidence:   analysis.Confidence,
			StressLevel:  analysis.StressLevel,
		},
	})
}

// WearableSignal is a panic press reported by a wearable device.
type WearableSignal struct {
	DeviceID    string     `json:"device_id"`
	SubjectID   string     `json:"subject_id"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	Location    *alert.Fix `json:"location,omitempty"`
}

// HandleWearableTrigger creates a wearable alert. A signal without a subject
// is attributed through the phone number directory.
func (s *Service) HandleWearableTrigger(ctx context.Context, signal WearableSignal) (*alert.Alert, error) {
	subjectID := signal.SubjectID
	if subjectID == "" && signal.PhoneNumber != "" {
		subjectID, _ = s.directory.SubjectByPhone(ctx, signal.PhoneNumber)
	}

	if subjectID == "" {
		return nil, fmt.Errorf("wearable %s: %w", signal.DeviceID, alert.ErrUnknownSubject)
	}

	return s.TriggerEmergency(ctx, &alert.Trigger{
		SubjectID:   subjectID,
		Kind:        alert.TriggerWearable,
		PhoneNumber: signal.PhoneNumber,
		Location:    signal.Location,
		Metadata: alert.Metadata{
			Extra: map[string]string{"device_id": signal.DeviceID},
		},
	})
}
