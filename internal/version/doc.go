// Package version exposes build metadata of sos-server.
//
// Version, Commit and BuildTime are injected with -ldflags "-X" at build time.
package version
