package alert

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	domain "github.com/oshokin/sos-engine/internal/domain/alert"
)

// Client calls sos.v1.EmergencyService over a connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.cc.Invoke(ctx, method, req, resp, grpc.CallContentSubtype(CodecName))
}

// Trigger raises a new alert.
func (c *Client) Trigger(ctx context.Context, req *TriggerRequest) (*AlertResponse, error) {
	resp := new(AlertResponse)

	return resp, c.invoke(ctx, MethodTrigger, req, resp)
}

// UpdateLocation records a new fix.
func (c *Client) UpdateLocation(ctx context.Context, req *UpdateLocationRequest) (*AlertResponse, error) {
	resp := new(AlertResponse)

	return resp, c.invoke(ctx, MethodUpdateLocation, req, resp)
}

// AddEvidence appends captured media.
func (c *Client) AddEvidence(ctx context.Context, req *AddEvidenceRequest) (*EvidenceResponse, error) {
	resp := new(EvidenceResponse)

	return resp, c.invoke(ctx, MethodAddEvidence, req, resp)
}

// Resolve closes an alert as resolved.
func (c *Client) Resolve(ctx context.Context, req *CloseRequest) (*AlertResponse, error) {
	resp := new(AlertResponse)

	return resp, c.invoke(ctx, MethodResolve, req, resp)
}

// MarkFalseAlarm closes an alert as a false alarm.
func (c *Client) MarkFalseAlarm(ctx context.Context, req *CloseRequest) (*AlertResponse, error) {
	resp := new(AlertResponse)

	return resp, c.invoke(ctx, MethodMarkFalseAlarm, req, resp)
}

// GetAlert returns one alert.
func (c *Client) GetAlert(ctx context.Context, req *GetAlertRequest) (*AlertResponse, error) {
	resp := new(AlertResponse)

	return resp, c.invoke(ctx, MethodGetAlert, req, resp)
}

// ListActive returns every non-terminal alert.
func (c *Client) ListActive(ctx context.Context) (*ListActiveResponse, error) {
	resp := new(ListActiveResponse)

	return resp, c.invoke(ctx, MethodListActive, &ListActiveRequest{}, resp)
}

// EventReceiver reads events from a WatchEvents stream.
type EventReceiver struct {
	stream grpc.ClientStream
}

// Recv blocks until the next event arrives.
func (r *EventReceiver) Recv() (*domain.Event, error) {
	event := new(domain.Event)
	if err := r.stream.RecvMsg(event); err != nil {
		return nil, err
	}

	return event, nil
}

// WatchEvents opens an event stream. Cancel ctx to close it.
func (c *Client) WatchEvents(ctx context.Context, req *WatchEventsRequest) (*EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &EmergencyServiceDesc.Streams[0], MethodWatchEvents,
		grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}

	if err = stream.SendMsg(req); err != nil {
		return nil, fmt.Errorf("send watch request: %w", err)
	}

	if err = stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close watch request: %w", err)
	}

	return &EventReceiver{stream: stream}, nil
}
