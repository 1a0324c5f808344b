package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// genesis is the previous hash of the first entry.
const genesis = "genesis"

// ErrBroken is returned by Verify when the chain does not re-hash.
var ErrBroken = errors.New("hash chain broken")

// errStopScan ends a scan early without reporting an error.
var errStopScan = errors.New("stop scan")

// Entry is one committed evidence reference.
type Entry struct {
	Sequence   uint64    `json:"sequence"`
	AlertID    string    `json:"alert_id"`
	StorageRef string    `json:"storage_ref"`
	Timestamp  time.Time `json:"timestamp"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// entryLog stores committed entries in order.
type entryLog interface {
	append(entry Entry) error
	// scan calls fn for every entry in order until fn returns an error.
	scan(fn func(entry Entry) error) error
}

// Chain is an append-only hash chain. Only the head and the length are kept
// in memory, entries live in the backing log. It is safe for concurrent use.
type Chain struct {
	mu   sync.Mutex
	log  entryLog
	head string
	seq  uint64
}

// New creates an empty chain backed by memory.
func New() *Chain {
	return &Chain{
		log:  new(memoryLog),
		head: genesis,
	}
}

// Open creates a chain backed by a JSON-lines file. Existing entries are
// verified and the chain continues from their head.
func Open(path string) (*Chain, error) {
	c := &Chain{
		log:  newFileLog(path),
		head: genesis,
	}

	var v verifier

	err := c.log.scan(func(entry Entry) error {
		return v.next(entry)
	})
	if err != nil {
		return nil, fmt.Errorf("resume chain %s: %w", path, err)
	}

	c.head, c.seq = v.prev, v.count

	return c, nil
}

// Commit appends a reference and returns its hash.
// A failed write leaves the chain unchanged.
func (c *Chain) Commit(_ context.Context, storageRef string, timestamp time.Time, alertID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		Sequence:   c.seq + 1,
		AlertID:    alertID,
		StorageRef: storageRef,
		Timestamp:  timestamp.UTC(),
		PrevHash:   c.head,
	}

	hash, err := hashEntry(entry)
	if err != nil {
		return "", err
	}

	entry.Hash = hash

	if err = c.log.append(entry); err != nil {
		return "", err
	}

	c.head = hash
	c.seq = entry.Sequence

	return hash, nil
}

// Head returns the hash of the last entry.
func (c *Chain) Head() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.head
}

// Len returns the number of entries.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return int(c.seq)
}

// Entries reads the whole chain from the backing log.
func (c *Chain) Entries() ([]Entry, error) {
	head, seq := c.snapshot()
	entries := make([]Entry, 0, seq)

	err := c.walk(seq, func(entry Entry) error {
		entries = append(entries, entry)

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(entries) > 0 && entries[len(entries)-1].Hash != head {
		return nil, fmt.Errorf("%w: log ends before head", ErrBroken)
	}

	return entries, nil
}

// Verify re-walks the committed entries and checks every link, every hash
// and that the walk ends at the current head. Commits may continue meanwhile.
func (c *Chain) Verify() error {
	head, seq := c.snapshot()

	var v verifier

	if err := c.walk(seq, v.next); err != nil {
		return err
	}

	if v.count != seq || v.prev != head {
		return fmt.Errorf("%w: log holds %d entries ending at %s, want %d ending at %s",
			ErrBroken, v.count, v.prev, seq, head)
	}

	return nil
}

func (c *Chain) snapshot() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.head, c.seq
}

// walk visits the first n entries of the log.
func (c *Chain) walk(n uint64, fn func(entry Entry) error) error {
	if n == 0 {
		return nil
	}

	var seen uint64

	err := c.log.scan(func(entry Entry) error {
		if err := fn(entry); err != nil {
			return err
		}

		seen++
		if seen == n {
			return errStopScan
		}

		return nil
	})
	if errors.Is(err, errStopScan) {
		return nil
	}

	return err
}

// Verify checks a sequence of entries starting from genesis.
func Verify(entries []Entry) error {
	var v verifier

	for _, entry := range entries {
		if err := v.next(entry); err != nil {
			return err
		}
	}

	return nil
}

// verifier checks entries one at a time so a chain of any length is verified in constant memory.
type verifier struct {
	prev  string
	count uint64
}

func (v *verifier) next(entry Entry) error {
	if v.prev == "" {
		v.prev = genesis
	}

	v.count++

	if entry.PrevHash != v.prev {
		return fmt.Errorf("%w: entry %d links to %s, want %s", ErrBroken, v.count, entry.PrevHash, v.prev)
	}

	hash, err := hashEntry(entry)
	if err != nil {
		return err
	}

	if hash != entry.Hash {
		return fmt.Errorf("%w: entry %d hash mismatch", ErrBroken, v.count)
	}

	v.prev = entry.Hash

	return nil
}

func hashEntry(entry Entry) (string, error) {
	input := struct {
		Sequence   uint64    `json:"seq"`
		AlertID    string    `json:"alert_id"`
		StorageRef string    `json:"ref"`
		Timestamp  time.Time `json:"ts"`
		PrevHash   string    `json:"prev"`
	}{entry.Sequence, entry.AlertID, entry.StorageRef, entry.Timestamp, entry.PrevHash}

	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chain entry: %w", err)
	}

	sum := sha256.Sum256(raw)

	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
