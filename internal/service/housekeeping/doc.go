// Package housekeeping runs the periodic report over in-flight alerts:
// it refreshes the active and stale gauges and logs alerts left open too long.
package housekeeping
