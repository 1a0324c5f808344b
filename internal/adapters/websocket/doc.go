// Package websocket pushes alert events to dashboard clients.
//
// A client connects to the hub endpoint, optionally with ?alert_id=<id> to
// follow a single alert, and receives every matching event as a JSON text
// message. Clients that cannot keep up are disconnected.
package websocket
