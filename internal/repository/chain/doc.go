// Package chain implements an append-only SHA-256 hash chain used as the
// tamper ledger of evidence items.
package chain
