// Package alert contains core domain types for the emergency alert lifecycle.
//
// It defines Alert (the stateful record of one emergency), its Location,
// Evidence and Timeline, the Trigger that creates it, the Event emitted on
// every lifecycle change, and the sentinel errors shared by the services.
// Clone helpers return deep copies so callers never hold internal references.
package alert
