package alert

import (
	"fmt"
	"strings"
)

// Trigger is the request that creates an alert.
type Trigger struct {
	// SubjectID identifies the person in danger.
	SubjectID string `json:"subject_id"`
	// Kind is what raised the alert.
	Kind TriggerKind `json:"kind"`
	// PhoneNumber of the subject, used for operator detection.
	PhoneNumber string `json:"phone_number,omitempty"`
	// Location is an optional fix supplied with the trigger.
	Location *Fix `json:"location,omitempty"`
	// Hint is an optional declared carrier context.
	Hint *CarrierHint `json:"hint,omitempty"`
	// Metadata is the triggering context copied onto the alert.
	Metadata Metadata `json:"metadata"`
}

// Validate checks the trigger and returns an error wrapping ErrInvalidTrigger.
func (t *Trigger) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: trigger is required", ErrInvalidTrigger)
	}

	if strings.TrimSpace(t.SubjectID) == "" {
		return fmt.Errorf("%w: subject id is required", ErrInvalidTrigger)
	}

	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown trigger kind %q", ErrInvalidTrigger, t.Kind)
	}

	if t.Location != nil && !t.Location.ValidCoordinates() {
		return fmt.Errorf("%w: location out of range", ErrInvalidTrigger)
	}

	return nil
}
