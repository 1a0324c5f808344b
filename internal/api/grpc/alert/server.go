package alert

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// watchBuffer is the per-stream event buffer.
const watchBuffer = 64

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	TriggerEmergency(ctx context.Context, trigger *domain.Trigger) (*domain.Alert, error)
	UpdateLocation(ctx context.Context, id string, fix domain.Fix) (*domain.Alert, error)
	AddEvidence(ctx context.Context, id string, c evidence.Capture) (domain.Evidence, error)
	ResolveEmergency(ctx context.Context, id, resolvedBy, reason string) (*domain.Alert, error)
	MarkFalseAlarm(ctx context.Context, id, markedBy, reason string) (*domain.Alert, error)
	GetAlert(ctx context.Context, id string) (*domain.Alert, error)
	GetActiveAlerts() []*domain.Alert
	Subscribe(buffer int) (<-chan domain.Event, func())
}

// Server implements the EmergencyService gRPC API.
type Server struct {
	// service provides the business logic for alert operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// Trigger raises a new alert.
func (s *Server) Trigger(ctx context.Context, req *TriggerRequest) (*AlertResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	a, err := s.service.TriggerEmergency(ctx, &domain.Trigger{
		SubjectID:   req.SubjectID,
		Kind:        req.Kind,
		PhoneNumber: req.PhoneNumber,
		Location:    req.Location,
		Hint:        req.Carrier,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &AlertResponse{Alert: a}, nil
}

// UpdateLocation records a new fix for an active alert.
func (s *Server) UpdateLocation(ctx context.Context, req *UpdateLocationRequest) (*AlertResponse, error) {
	if req == nil || req.AlertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	a, err := s.service.UpdateLocation(ctx, req.AlertID, req.Location)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &AlertResponse{Alert: a}, nil
}

// AddEvidence appends captured media to an active alert.
func (s *Server) AddEvidence(ctx context.Context, req *AddEvidenceRequest) (*EvidenceResponse, error) {
	if req == nil || req.AlertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	ev, err := s.service.AddEvidence(ctx, req.AlertID, evidence.Capture{
		Kind:       req.Kind,
		Data:       req.Data,
		CapturedAt: req.CapturedAt,
	})
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &EvidenceResponse{Evidence: ev}, nil
}

// Resolve closes an alert as resolved.
func (s *Server) Resolve(ctx context.Context, req *CloseRequest) (*AlertResponse, error) {
	if req == nil || req.AlertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	a, err := s.service.ResolveEmergency(ctx, req.AlertID, req.By, req.Reason)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &AlertResponse{Alert: a}, nil
}

// MarkFalseAlarm closes an alert as a false alarm.
func (s *Server) MarkFalseAlarm(ctx context.Context, req *CloseRequest) (*AlertResponse, error) {
	if req == nil || req.AlertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	a, err := s.service.MarkFalseAlarm(ctx, req.AlertID, req.By, req.Reason)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &AlertResponse{Alert: a}, nil
}

// GetAlert returns one alert, live or archived.
func (s *Server) GetAlert(ctx context.Context, req *GetAlertRequest) (*AlertResponse, error) {
	if req == nil || req.AlertID == "" {
		return nil, status.Error(codes.InvalidArgument, "alert_id is required")
	}

	a, err := s.service.GetAlert(ctx, req.AlertID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &AlertResponse{Alert: a}, nil
}

// ListActive returns every non-terminal alert.
func (s *Server) ListActive(context.Context, *ListActiveRequest) (*ListActiveResponse, error) {
	return &ListActiveResponse{Alerts: s.service.GetActiveAlerts()}, nil
}

// WatchEvents streams lifecycle events until the client goes away.
func (s *Server) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ctx := stream.Context()

	events, cancel := s.service.Subscribe(watchBuffer)
	defer cancel()

	var alertID string
	if req != nil {
		alertID = req.AlertID
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}

			if alertID != "" && (event.Alert == nil || event.Alert.ID != alertID) {
				continue
			}

			if err := stream.Send(&event); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors to gRPC status codes.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrInvalidTrigger):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUpstreamUnavailable), errors.Is(err, domain.ErrResolutionFailed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		logger.ErrorKV(ctx, "Unexpected service error", "error", err)

		return status.Error(codes.Internal, "internal error")
	}
}
