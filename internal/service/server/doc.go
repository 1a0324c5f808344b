// Package server wires the emergency engine to its collaborators and serves
// the gRPC and HTTP APIs until the process is asked to stop.
//
// Optional backends are selected from the settings: Postgres replaces the
// JSON-lines archive, MinIO replaces the local evidence directory, Redis adds
// an event stream and MQTT adds wearable triggers and device commands.
package server
