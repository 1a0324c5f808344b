// Package evidence keeps the append-only evidence ledger of every alert.
//
// An append stores the payload in a content store, commits the storage
// reference to a tamper ledger and only then records the item. A failure
// at any step leaves the ledger untouched.
package evidence
