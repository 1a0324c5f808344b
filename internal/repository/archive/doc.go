// Package archive persists terminal alerts handed off by the engine.
//
// The FileRepository appends one JSON document per line, so the archive
// survives partial writes and can be tailed by external tools.
package archive
