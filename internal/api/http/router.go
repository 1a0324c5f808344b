package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/emergency"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// Request limits.
const (
	maxJSONBody     = 1 << 20
	maxEvidenceBody = 72 << 20
	requestTimeout  = 30 * time.Second
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	TriggerEmergency(ctx context.Context, trigger *alert.Trigger) (*alert.Alert, error)
	UpdateLocation(ctx context.Context, id string, fix alert.Fix) (*alert.Alert, error)
	AddEvidence(ctx context.Context, id string, c evidence.Capture) (alert.Evidence, error)
	ResolveEmergency(ctx context.Context, id, resolvedBy, reason string) (*alert.Alert, error)
	MarkFalseAlarm(ctx context.Context, id, markedBy, reason string) (*alert.Alert, error)
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)
	GetActiveAlerts() []*alert.Alert
	ActiveCount() int
	HandleUSSDTrigger(ctx context.Context, req emergency.USSDRequest) (emergency.USSDResponse, error)
	HandleVoiceTrigger(ctx context.Context, subjectID string, analysis emergency.VoiceAnalysis) (*alert.Alert, error)
}

// DeviceReporter stores locations reported by subjects' devices.
type DeviceReporter interface {
	Report(ctx context.Context, subjectID string, fix alert.Fix) error
}

// Handler serves the HTTP API.
type Handler struct {
	ctx     context.Context //nolint:containedctx // Base logging context of request handlers.
	service Service
	devices DeviceReporter
	events  http.Handler
	metrics http.Handler
}

// Option configures optional surfaces.
type Option func(*Handler)

// WithDeviceReporter enables POST /v1/devices/{subjectId}/location.
func WithDeviceReporter(devices DeviceReporter) Option {
	return func(h *Handler) {
		h.devices = devices
	}
}

// WithEvents mounts the event WebSocket at /ws.
func WithEvents(events http.Handler) Option {
	return func(h *Handler) {
		h.events = events
	}
}

// WithMetrics mounts the metrics handler at /metrics.
func WithMetrics(metrics http.Handler) Option {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// New creates the handler.
func New(ctx context.Context, service Service, opts ...Option) *Handler {
	h := &Handler{
		ctx:     logger.WithName(ctx, "http"),
		service: service,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Routes returns a chi.Router with every endpoint mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.healthz)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	if h.events != nil {
		r.Method(http.MethodGet, "/ws", h.events)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", h.triggerAlert)
			r.Get("/", h.listActive)

			r.Route("/{alertID}", func(r chi.Router) {
				r.Get("/", h.getAlert)
				r.Post("/location", h.updateLocation)
				r.Post("/evidence", h.addEvidence)
				r.Post("/resolve", h.resolve)
				r.Post("/false-alarm", h.markFalseAlarm)
			})
		})

		r.Post("/ussd", h.ussd)
		r.Post("/subjects/{subjectID}/voice", h.voice)

		if h.devices != nil {
			r.Post("/devices/{subjectID}/location", h.reportDeviceLocation)
		}
	})

	return r
}

// logRequests attaches a request-scoped logger and logs completed requests.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		ctx := logger.ToContext(r.Context(), logger.FromContext(h.ctx).With(
			"request_id", middleware.GetReqID(r.Context()),
		))

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.DebugKV(ctx, "HTTP request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}
