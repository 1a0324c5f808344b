// Package broadcast fans typed alert events out to subscribers over channels.
package broadcast
