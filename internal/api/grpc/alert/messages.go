package alert

import (
	"time"

	domain "github.com/oshokin/sos-engine/internal/domain/alert"
)

// TriggerRequest raises a new alert.
type TriggerRequest struct {
	SubjectID   string              `json:"subject_id"`
	Kind        domain.TriggerKind  `json:"kind"`
	PhoneNumber string              `json:"phone_number,omitempty"`
	Location    *domain.Fix         `json:"location,omitempty"`
	Carrier     *domain.CarrierHint `json:"carrier,omitempty"`
	Metadata    domain.Metadata     `json:"metadata"`
}

// UpdateLocationRequest records a new fix.
type UpdateLocationRequest struct {
	AlertID  string     `json:"alert_id"`
	Location domain.Fix `json:"location"`
}

// AddEvidenceRequest appends captured media.
type AddEvidenceRequest struct {
	AlertID    string              `json:"alert_id"`
	Kind       domain.EvidenceKind `json:"kind"`
	Data       []byte              `json:"data"`
	CapturedAt time.Time           `json:"captured_at"`
}

// CloseRequest resolves an alert or marks it a false alarm.
type CloseRequest struct {
	AlertID string `json:"alert_id"`
	By      string `json:"by,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// GetAlertRequest asks for one alert.
type GetAlertRequest struct {
	AlertID string `json:"alert_id"`
}

// ListActiveRequest asks for every non-terminal alert.
type ListActiveRequest struct{}

// WatchEventsRequest subscribes to lifecycle events, optionally of one alert.
type WatchEventsRequest struct {
	AlertID string `json:"alert_id,omitempty"`
}

// AlertResponse carries an alert snapshot.
type AlertResponse struct {
	Alert *domain.Alert `json:"alert"`
}

// EvidenceResponse carries an appended evidence record.
type EvidenceResponse struct {
	Evidence domain.Evidence `json:"evidence"`
}

// ListActiveResponse carries active alerts.
type ListActiveResponse struct {
	Alerts []*domain.Alert `json:"alerts"`
}
