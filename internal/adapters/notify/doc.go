// Package notify delivers alert notifications as text messages to the
// contacts collected during response initiation.
package notify
