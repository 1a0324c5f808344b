package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// TestMetrics_Counters checks that engine hooks update the collectors.
func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New()

	m.AlertTriggered(alert.TriggerUSSD)
	m.AlertTriggered(alert.TriggerUSSD)
	m.AlertTransitioned(alert.StateEscalated)
	m.LocationResolved(alert.ConfidenceStatic)
	m.EvidenceAppended(alert.EvidenceAudio)
	m.UpstreamFailed("notifier")
	m.ActiveAlerts(3)
	m.StaleAlerts(1)
	m.EventPublished("redis", nil)
	m.EventPublished("redis", errors.New("down"))

	require.InDelta(t, 2, testutil.ToFloat64(m.triggered.WithLabelValues("ussd")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.transitions.WithLabelValues("escalated")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.fixes.WithLabelValues("static")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.upstream.WithLabelValues("notifier")), 0)
	require.InDelta(t, 3, testutil.ToFloat64(m.active), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.published.WithLabelValues("redis", "error")), 0)
}

// TestMetrics_Handler serves the text exposition format.
func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := New()
	m.ActiveAlerts(2)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL) //nolint:noctx // Test request.
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "sos_active_alerts 2")
}
