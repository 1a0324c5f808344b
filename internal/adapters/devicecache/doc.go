// Package devicecache keeps the latest fix reported by each subject's device.
// Reports expire after a TTL, so a silent device stops counting as live.
package devicecache
