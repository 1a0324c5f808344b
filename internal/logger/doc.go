// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with console or JSON encoding,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - key-value helpers (InfoKV, WarnKV, ErrorKV, DebugKV).
//
// Every engine component accepts a context and extracts the logger from it,
// so alert ids and subject ids stay attached to each log line.
package logger
