// Package escalation provides a per-alert deferred action timer.
//
// At most one timer is outstanding per alert. A fired callback either runs
// to completion before Disarm returns or does not run at all.
package escalation
