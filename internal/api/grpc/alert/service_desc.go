package alert

import (
	"context"

	"google.golang.org/grpc"

	domain "github.com/oshokin/sos-engine/internal/domain/alert"
)

// Fully-qualified method names.
const (
	ServiceName              = "sos.v1.EmergencyService"
	MethodTrigger            = "/" + ServiceName + "/Trigger"
	MethodUpdateLocation     = "/" + ServiceName + "/UpdateLocation"
	MethodAddEvidence        = "/" + ServiceName + "/AddEvidence"
	MethodResolve            = "/" + ServiceName + "/Resolve"
	MethodMarkFalseAlarm     = "/" + ServiceName + "/MarkFalseAlarm"
	MethodGetAlert           = "/" + ServiceName + "/GetAlert"
	MethodListActive         = "/" + ServiceName + "/ListActive"
	MethodWatchEvents        = "/" + ServiceName + "/WatchEvents"
	watchEventsStreamName    = "WatchEvents"
	emergencyServiceMetadata = "sos/v1/emergency.proto"
)

// EmergencyServiceServer is the server API of sos.v1.EmergencyService.
type EmergencyServiceServer interface {
	Trigger(ctx context.Context, req *TriggerRequest) (*AlertResponse, error)
	UpdateLocation(ctx context.Context, req *UpdateLocationRequest) (*AlertResponse, error)
	AddEvidence(ctx context.Context, req *AddEvidenceRequest) (*EvidenceResponse, error)
	Resolve(ctx context.Context, req *CloseRequest) (*AlertResponse, error)
	MarkFalseAlarm(ctx context.Context, req *CloseRequest) (*AlertResponse, error)
	GetAlert(ctx context.Context, req *GetAlertRequest) (*AlertResponse, error)
	ListActive(ctx context.Context, req *ListActiveRequest) (*ListActiveResponse, error)
	WatchEvents(req *WatchEventsRequest, stream EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(event *domain.Event) error
	Context() context.Context
}

// RegisterEmergencyServiceServer registers the implementation on the gRPC server.
func RegisterEmergencyServiceServer(s grpc.ServiceRegistrar, srv EmergencyServiceServer) {
	s.RegisterService(&EmergencyServiceDesc, srv)
}

// unary builds a method handler decoding Req and calling call.
func unary[Req any, Resp any](
	fullMethod string,
	call func(srv EmergencyServiceServer, ctx context.Context, req *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(EmergencyServiceServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			r, _ := req.(*Req)

			return call(server, ctx, r)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// eventStream adapts grpc.ServerStream to EventStream.
type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(event *domain.Event) error {
	return s.ServerStream.SendMsg(event)
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(EmergencyServiceServer)

	return server.WatchEvents(in, &eventStream{ServerStream: stream})
}

// EmergencyServiceDesc describes sos.v1.EmergencyService.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var EmergencyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EmergencyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Trigger",
			Handler:    unary(MethodTrigger, EmergencyServiceServer.Trigger),
		},
		{
			MethodName: "UpdateLocation",
			Handler:    unary(MethodUpdateLocation, EmergencyServiceServer.UpdateLocation),
		},
		{
			MethodName: "AddEvidence",
			Handler:    unary(MethodAddEvidence, EmergencyServiceServer.AddEvidence),
		},
		{
			MethodName: "Resolve",
			Handler:    unary(MethodResolve, EmergencyServiceServer.Resolve),
		},
		{
			MethodName: "MarkFalseAlarm",
			Handler:    unary(MethodMarkFalseAlarm, EmergencyServiceServer.MarkFalseAlarm),
		},
		{
			MethodName: "GetAlert",
			Handler:    unary(MethodGetAlert, EmergencyServiceServer.GetAlert),
		},
		{
			MethodName: "ListActive",
			Handler:    unary(MethodListActive, EmergencyServiceServer.ListActive),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    watchEventsStreamName,
			Handler:       watchEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: emergencyServiceMetadata,
}
