package alert

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown alert id.
	ErrNotFound = errors.New("alert not found")
	// ErrAlreadyTerminal is returned when mutating a resolved or false-alarm alert.
	ErrAlreadyTerminal = errors.New("alert is already terminal")
	// ErrResolutionDegraded marks a location fix that fell back past the device and operator tiers.
	// It is a quality signal, never returned to callers of the engine.
	ErrResolutionDegraded = errors.New("location resolution degraded")
	// ErrResolutionFailed is returned only when even the static fallback has no value.
	ErrResolutionFailed = errors.New("location resolution failed")
	// ErrUpstreamUnavailable wraps a failed collaborator call.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidTrigger is returned for a malformed trigger payload.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrInvalidEvidence is returned for a malformed evidence capture.
	ErrInvalidEvidence = fmt.Errorf("%w: invalid evidence", ErrInvalidTrigger)
	// ErrUnknownSubject is returned when a phone number maps to no known subject.
	ErrUnknownSubject = fmt.Errorf("%w: unknown subject", ErrInvalidTrigger)
)

// Upstream wraps err as ErrUpstreamUnavailable, naming the collaborator.
func Upstream(collaborator string, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", collaborator, ErrUpstreamUnavailable, err)
}
