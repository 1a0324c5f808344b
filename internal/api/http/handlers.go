package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/emergency"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// errBadBody marks undecodable request bodies.
var errBadBody = errors.New("malformed request body")

// triggerBody is the POST /v1/alerts payload.
type triggerBody struct {
	SubjectID   string             `json:"subject_id"`
	Kind        alert.TriggerKind  `json:"kind"`
	PhoneNumber string             `json:"phone_number"`
	Location    *alert.Fix         `json:"location"`
	Carrier     *alert.CarrierHint `json:"carrier"`
	Metadata    alert.Metadata     `json:"metadata"`
}

// closeBody is the payload of resolve and false-alarm requests.
type closeBody struct {
	By     string `json:"by"`
	Reason string `json:"reason"`
}

// evidenceBody carries base64-encoded media.
type evidenceBody struct {
	Kind       alert.EvidenceKind `json:"kind"`
	Data       []byte             `json:"data"`
	CapturedAt time.Time          `json:"captured_at"`
}

// errorBody is returned on failures.
type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"active_alerts": h.service.ActiveCount(),
	})
}

func (h *Handler) triggerAlert(w http.ResponseWriter, r *http.Request) {
	var body triggerBody
	if !decode(w, r, maxJSONBody, &body) {
		return
	}

	a, err := h.service.TriggerEmergency(r.Context(), &alert.Trigger{
		SubjectID:   body.SubjectID,
		Kind:        body.Kind,
		PhoneNumber: body.PhoneNumber,
		Location:    body.Location,
		Hint:        body.Carrier,
		Metadata:    body.Metadata,
	})
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) listActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"alerts": h.service.GetActiveAlerts()})
}

func (h *Handler) getAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAlert(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) updateLocation(w http.ResponseWriter, r *http.Request) {
	var fix alert.Fix
	if !decode(w, r, maxJSONBody, &fix) {
		return
	}

	a, err := h.service.UpdateLocation(r.Context(), chi.URLParam(r, "alertID"), fix)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) addEvidence(w http.ResponseWriter, r *http.Request) {
	var body evidenceBody
	if !decode(w, r, maxEvidenceBody, &body) {
		return
	}

	ev, err := h.service.AddEvidence(r.Context(), chi.URLParam(r, "alertID"), evidence.Capture{
		Kind:       body.Kind,
		Data:       body.Data,
		CapturedAt: body.CapturedAt,
	})
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, ev)
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	var body closeBody
	if !decodeOptional(w, r, &body) {
		return
	}

	a, err := h.service.ResolveEmergency(r.Context(), chi.URLParam(r, "alertID"), body.By, body.Reason)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) markFalseAlarm(w http.ResponseWriter, r *http.Request) {
	var body closeBody
	if !decodeOptional(w, r, &body) {
		return
	}

	a, err := h.service.MarkFalseAlarm(r.Context(), chi.URLParam(r, "alertID"), body.By, body.Reason)
	if err != nil {
		writeError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) ussd(w http.ResponseWriter, r *http.Request) {
	var req emergency.USSDRequest
	if !decode(w, r, maxJSONBody, &req) {
		return
	}

	resp, err := h.service.HandleUSSDTrigger(r.Context(), req)
	if err != nil {
		logger.WarnKV(r.Context(), "USSD trigger rejected", "error", err)
		writeJSON(w, statusOf(err), resp)

		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) voice(w http.ResponseWriter, r *http.Request) {
	var analysis emergency.VoiceAnalysis
	if !decode(w, r, maxJSONBody, &analysis) {
		return
	}

	a, err := h.service.HandleVoiceTrigger(r.Context(), chi.URLParam(r, "subjectID"), analysis)
	if err != nil {
		writeError(w, r, err)

		return
	}

	if a == nil {
		w.WriteHeader(http.StatusNoContent)

		return
	}

	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) reportDeviceLocation(w http.ResponseWriter, r *http.Request) {
	var fix alert.Fix
	if !decode(w, r, maxJSONBody, &fix) {
		return
	}

	if err := h.devices.Report(r.Context(), chi.URLParam(r, "subjectID"), fix); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})

		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// decode reads a JSON body of at most limit bytes. It writes a 400 and returns
// false on failure.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Errorf("%w: %w", errBadBody, err).Error()})

		return false
	}

	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Errorf("%w: %w", errBadBody, err).Error()})

		return false
	}

	return true
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, alert.ErrInvalidTrigger):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrUpstreamUnavailable), errors.Is(err, alert.ErrResolutionFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)

	message := err.Error()
	if code == http.StatusInternalServerError {
		logger.ErrorKV(r.Context(), "Unexpected service error", "error", err)

		message = http.StatusText(code)
	}

	writeJSON(w, code, errorBody{Error: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	_ = json.NewEncoder(w).Encode(v)
}
