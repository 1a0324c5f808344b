package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/emergency"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// fakeService implements Service for unit testing the transport.
type fakeService struct {
	mu      sync.Mutex
	alerts  map[string]*alert.Alert
	err     error
	reasons []string
}

func newFakeService() *fakeService {
	return &fakeService{alerts: make(map[string]*alert.Alert)}
}

func (f *fakeService) TriggerEmergency(_ context.Context, t *alert.Trigger) (*alert.Alert, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	a := &alert.Alert{
		ID:        fmt.Sprintf("A%d", len(f.alerts)+1),
		SubjectID: t.SubjectID,
		Trigger:   t.Kind,
		State:     alert.StateActive,
	}
	f.alerts[a.ID] = a

	return a.Clone(), nil
}

func (f *fakeService) get(id string) (*alert.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, alert.ErrNotFound
	}

	return a, nil
}

func (f *fakeService) UpdateLocation(_ context.Context, id string, fix alert.Fix) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(id)
	if err != nil {
		return nil, err
	}

	if a.State.Terminal() {
		return nil, alert.ErrAlreadyTerminal
	}

	a.Location = fix.Location("")

	return a.Clone(), nil
}

func (f *fakeService) AddEvidence(_ context.Context, id string, c evidence.Capture) (alert.Evidence, error) {
	if err := c.Validate(); err != nil {
		return alert.Evidence{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := f.get(id); err != nil {
		return alert.Evidence{}, err
	}

	if f.err != nil {
		return alert.Evidence{}, f.err
	}

	return alert.Evidence{Kind: c.Kind, StorageRef: "mem://" + string(c.Data), TamperHash: "sha256:x"}, nil
}

func (f *fakeService) close(id, reason string, state alert.State) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(id)
	if err != nil {
		return nil, err
	}

	if a.State.Terminal() {
		return nil, alert.ErrAlreadyTerminal
	}

	a.State = state
	f.reasons = append(f.reasons, reason)

	return a.Clone(), nil
}

func (f *fakeService) ResolveEmergency(_ context.Context, id, _, reason string) (*alert.Alert, error) {
	return f.close(id, reason, alert.StateResolved)
}

func (f *fakeService) MarkFalseAlarm(_ context.Context, id, _, reason string) (*alert.Alert, error) {
	return f.close(id, reason, alert.StateFalseAlarm)
}

func (f *fakeService) GetAlert(_ context.Context, id string) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, err := f.get(id)
	if err != nil {
		return nil, err
	}

	return a.Clone(), nil
}

func (f *fakeService) GetActiveAlerts() []*alert.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*alert.Alert, 0, len(f.alerts))
	for _, a := range f.alerts {
		if !a.State.Terminal() {
			out = append(out, a.Clone())
		}
	}

	return out
}

func (f *fakeService) ActiveCount() int {
	return len(f.GetActiveAlerts())
}

func (f *fakeService) HandleUSSDTrigger(ctx context.Context, req emergency.USSDRequest) (emergency.USSDResponse, error) {
	if req.PhoneNumber != "6001234567" {
		return emergency.USSDResponse{Message: emergency.USSDReplyUnavailable}, alert.ErrUnknownSubject
	}

	a, err := f.TriggerEmergency(ctx, &alert.Trigger{SubjectID: "S1", Kind: alert.TriggerUSSD})
	if err != nil {
		return emergency.USSDResponse{Message: emergency.USSDReplyUnavailable}, err
	}

	return emergency.USSDResponse{Accepted: true, AlertID: a.ID, Message: emergency.USSDReplyActivated}, nil
}

func (f *fakeService) HandleVoiceTrigger(ctx context.Context, subjectID string, analysis emergency.VoiceAnalysis) (*alert.Alert, error) {
	if !analysis.IsEmergency {
		return nil, nil //nolint:nilnil // Mirrors the engine contract.
	}

	return f.TriggerEmergency(ctx, &alert.Trigger{SubjectID: subjectID, Kind: alert.TriggerVoiceCommand})
}

// fakeDevices records device reports.
type fakeDevices struct {
	mu      sync.Mutex
	reports map[string]alert.Fix
}

func (d *fakeDevices) Report(_ context.Context, subjectID string, fix alert.Fix) error {
	if !fix.ValidCoordinates() {
		return errors.New("invalid coordinates")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.reports[subjectID] = fix

	return nil
}

func newTestServer(t *testing.T, svc *fakeService, opts ...Option) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(New(context.Background(), svc, opts...).Routes())
	t.Cleanup(srv.Close)

	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, reader)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

// TestHandler_AlertLifecycle drives the REST endpoints through one alert.
func TestHandler_AlertLifecycle(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	srv := newTestServer(t, svc)

	code, body := do(t, srv, http.MethodPost, "/v1/alerts", `{"subject_id":"S1","kind":"panic_button"}`)
	require.Equal(t, http.StatusCreated, code)

	var created alert.Alert
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "A1", created.ID)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts/A1/location", `{"latitude":19.07,"longitude":72.87,"accuracy":10}`)
	require.Equal(t, http.StatusOK, code)

	code, body = do(t, srv, http.MethodPost, "/v1/alerts/A1/evidence", `{"kind":"audio","data":"Y2xpcA=="}`)
	require.Equal(t, http.StatusCreated, code)

	var ev alert.Evidence
	require.NoError(t, json.Unmarshal(body, &ev))
	require.Equal(t, "mem://clip", ev.StorageRef)

	code, body = do(t, srv, http.MethodGet, "/v1/alerts", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"id":"A1"`)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts/A1/resolve", `{"by":"operator","reason":"safe"}`)
	require.Equal(t, http.StatusOK, code)

	svc.mu.Lock()
	require.Equal(t, []string{"safe"}, svc.reasons)
	svc.mu.Unlock()

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts/A1/false-alarm", "")
	require.Equal(t, http.StatusConflict, code)

	code, body = do(t, srv, http.MethodGet, "/v1/alerts/A1", "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"state":"resolved"`)
}

// TestHandler_ErrorMapping maps domain errors to status codes.
func TestHandler_ErrorMapping(t *testing.T) {
	t.Parallel()

	svc := newFakeService()
	srv := newTestServer(t, svc)

	code, _ := do(t, srv, http.MethodGet, "/v1/alerts/missing", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts", `{"kind":"panic_button"}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts", `{not json`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts", `{"subject_id":"S1","kind":"panic_button"}`)
	require.Equal(t, http.StatusCreated, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts/A1/evidence", `{"kind":"hologram","data":"eA=="}`)
	require.Equal(t, http.StatusBadRequest, code)

	svc.mu.Lock()
	svc.err = alert.Upstream("content store", errors.New("down"))
	svc.mu.Unlock()

	code, _ = do(t, srv, http.MethodPost, "/v1/alerts/A1/evidence", `{"kind":"image","data":"eA=="}`)
	require.Equal(t, http.StatusServiceUnavailable, code)

	svc.mu.Lock()
	svc.err = errors.New("boom")
	svc.mu.Unlock()

	code, body := do(t, srv, http.MethodPost, "/v1/alerts", `{"subject_id":"S2","kind":"gesture"}`)
	require.Equal(t, http.StatusInternalServerError, code)
	require.NotContains(t, string(body), "boom")
}

// TestHandler_USSD replies with the gateway message in both outcomes.
func TestHandler_USSD(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeService())

	code, body := do(t, srv, http.MethodPost, "/v1/ussd", `{"phone_number":"6001234567","ussd_code":"*555#"}`)
	require.Equal(t, http.StatusCreated, code)

	var resp emergency.USSDResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.True(t, resp.Accepted)
	require.Equal(t, emergency.USSDReplyActivated, resp.Message)

	code, body = do(t, srv, http.MethodPost, "/v1/ussd", `{"phone_number":"9999999999","ussd_code":"*555#"}`)
	require.Equal(t, http.StatusBadRequest, code)
	require.NoError(t, json.Unmarshal(body, &resp))
	require.False(t, resp.Accepted)
	require.Equal(t, emergency.USSDReplyUnavailable, resp.Message)
}

// TestHandler_Voice creates alerts only for emergencies.
func TestHandler_Voice(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeService())

	code, _ := do(t, srv, http.MethodPost, "/v1/subjects/S1/voice", `{"is_emergency":false,"command":"hello"}`)
	require.Equal(t, http.StatusNoContent, code)

	code, body := do(t, srv, http.MethodPost, "/v1/subjects/S1/voice", `{"is_emergency":true,"command":"bachao"}`)
	require.Equal(t, http.StatusCreated, code)
	require.Contains(t, string(body), `"trigger":"voice_command"`)
}

// TestHandler_OptionalSurfaces mounts devices, events and metrics only when configured.
func TestHandler_OptionalSurfaces(t *testing.T) {
	t.Parallel()

	bare := newTestServer(t, newFakeService())

	code, _ := do(t, bare, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, bare, http.MethodPost, "/v1/devices/S1/location", `{"latitude":1,"longitude":1}`)
	require.Equal(t, http.StatusNotFound, code)

	devices := &fakeDevices{reports: make(map[string]alert.Fix)}
	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("stub"))
	})

	full := newTestServer(t, newFakeService(),
		WithDeviceReporter(devices),
		WithEvents(stub),
		WithMetrics(stub),
	)

	code, body := do(t, full, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "stub", string(body))

	code, _ = do(t, full, http.MethodGet, "/ws", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, full, http.MethodPost, "/v1/devices/S1/location", `{"latitude":12.97,"longitude":77.59}`)
	require.Equal(t, http.StatusAccepted, code)

	devices.mu.Lock()
	require.Contains(t, devices.reports, "S1")
	devices.mu.Unlock()

	code, _ = do(t, full, http.MethodPost, "/v1/devices/S1/location", `{"latitude":120,"longitude":77.59}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, full, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, bytes.Contains(body, []byte(`"status":"ok"`)))
}
