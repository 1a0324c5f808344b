// Package alert implements the gRPC transport of the emergency engine.
//
// The service sos.v1.EmergencyService is described by hand and speaks JSON
// through a registered "json" codec, so clients call it with the
// grpc.CallContentSubtype("json") option. Domain errors are translated to
// gRPC status codes.
package alert
