package evidence

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/logger"
)

// ContentStore persists raw evidence payloads.
type ContentStore interface {
	// Store saves data and returns an opaque storage reference.
	Store(ctx context.Context, data []byte, kind alert.EvidenceKind, alertID string) (string, error)
}

// TamperLedger produces a tamper-evidence hash for a stored item.
type TamperLedger interface {
	// Commit records the reference and returns its tamper hash.
	Commit(ctx context.Context, storageRef string, timestamp time.Time, alertID string) (string, error)
}

// Capture is a piece of raw media captured for an alert.
type Capture struct {
	// Kind is the media type.
	Kind alert.EvidenceKind `json:"kind"`
	// Data is the raw payload.
	Data []byte `json:"data"`
	// CapturedAt is when the media was captured. Zero means now.
	CapturedAt time.Time `json:"captured_at"`
}

// Validate checks the capture before any I/O is attempted.
func (c Capture) Validate() error {
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", alert.ErrInvalidEvidence, c.Kind)
	}

	if len(c.Data) == 0 {
		return fmt.Errorf("%w: empty payload", alert.ErrInvalidEvidence)
	}

	return nil
}

// Ledger is the append-only evidence record keeper.
type Ledger struct {
	// store persists payloads.
	store ContentStore
	// tamper produces tamper hashes.
	tamper TamperLedger
	// now returns the current time.
	now func() time.Time
	// mu protects records.
	mu sync.Mutex
	// records holds appended evidence per open alert id in append order.
	records map[string][]alert.Evidence
}

// NewLedger creates a ledger over the given collaborators.
func NewLedger(store ContentStore, tamper TamperLedger) *Ledger {
	return &Ledger{
		store:   store,
		tamper:  tamper,
		now:     time.Now,
		records: make(map[string][]alert.Evidence),
	}
}

// Append stores the capture, commits it to the tamper ledger and records it.
// Either a fully populated record is appended or nothing is.
// Collaborator failures are returned wrapped in alert.ErrUpstreamUnavailable.
func (l *Ledger) Append(ctx context.Context, alertID string, c Capture) (alert.Evidence, error) {
	if err := c.Validate(); err != nil {
		return alert.Evidence{}, err
	}

	capturedAt := c.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = l.now()
	}

	ref, err := l.store.Store(ctx, c.Data, c.Kind, alertID)
	if err != nil {
		return alert.Evidence{}, alert.Upstream("content store", err)
	}

	hash, err := l.tamper.Commit(ctx, ref, capturedAt, alertID)
	if err != nil {
		return alert.Evidence{}, alert.Upstream("tamper ledger", err)
	}

	item := alert.Evidence{
		Kind:       c.Kind,
		StorageRef: ref,
		TamperHash: hash,
		CapturedAt: capturedAt,
	}

	l.mu.Lock()
	l.records[alertID] = append(l.records[alertID], item)
	l.mu.Unlock()

	logger.DebugKV(ctx, "Evidence appended",
		"alert_id", alertID,
		"kind", c.Kind,
		"storage_ref", ref,
	)

	return item, nil
}

// Records returns a copy of the evidence appended for an alert.
func (l *Ledger) Records(alertID string) []alert.Evidence {
	l.mu.Lock()
	defer l.mu.Unlock()

	return slices.Clone(l.records[alertID])
}

// Forget drops the records of a closed alert.
// The stored payloads and the tamper ledger are not touched.
func (l *Ledger) Forget(alertID string) {
	l.mu.Lock()
	delete(l.records, alertID)
	l.mu.Unlock()
}
