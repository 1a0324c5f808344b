package registry

import (
	"hash/fnv"
	"slices"
	"strings"
	"sync"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// shardCount is the number of independent shards.
const shardCount = 32

// Entry is the canonical in-flight alert with its per-alert lock.
// Callers must hold Lock while reading or mutating Alert.
type Entry struct {
	sync.Mutex

	// Alert is the canonical instance, owned by the registry.
	Alert *alert.Alert
}

// shard is one lock domain of the registry.
type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Registry is a concurrent-safe store of in-flight alerts keyed by id.
type Registry struct {
	shards [shardCount]*shard
}

// New creates an empty registry.
func New() *Registry {
	r := new(Registry)

	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*Entry)}
	}

	return r
}

func (r *Registry) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return r.shards[h.Sum32()%shardCount]
}

// Put registers an alert and returns its entry.
// It reports false and leaves the registry unchanged when the id is taken.
func (r *Registry) Put(a *alert.Alert) (*Entry, bool) {
	s := r.shardFor(a.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[a.ID]; ok {
		return nil, false
	}

	e := &Entry{Alert: a}
	s.entries[a.ID] = e

	return e, true
}

// Get returns the entry of an in-flight alert.
func (r *Registry) Get(id string) (*Entry, bool) {
	s := r.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]

	return e, ok
}

// Remove deletes an alert from the registry. It reports whether it was present.
func (r *Registry) Remove(id string) bool {
	s := r.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return false
	}

	delete(s.entries, id)

	return true
}

// ListActive returns a point-in-time snapshot of deep copies ordered by creation time.
func (r *Registry) ListActive() []*alert.Alert {
	var entries []*Entry

	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			entries = append(entries, e)
		}
		s.mu.RUnlock()
	}

	result := make([]*alert.Alert, 0, len(entries))

	for _, e := range entries {
		e.Lock()
		if !e.Alert.State.Terminal() {
			result = append(result, e.Alert.Clone())
		}
		e.Unlock()
	}

	slices.SortFunc(result, func(a, b *alert.Alert) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return result
}

// Len returns the number of in-flight alerts.
func (r *Registry) Len() int {
	var n int

	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}

	return n
}
