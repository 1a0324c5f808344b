package devicecache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// DefaultTTL is how long a reported fix stays live.
const DefaultTTL = 2 * time.Minute

var (
	// ErrEmptySubject is returned when a report has no subject.
	ErrEmptySubject = errors.New("subject id is required")
	// ErrInvalidFix is returned for out-of-range coordinates.
	ErrInvalidFix = errors.New("invalid device coordinates")
)

// Cache is an expiring store of device fixes keyed by subject id.
// It implements location.DeviceSource.
type Cache struct {
	cache *gocache.Cache
	now   func() time.Time
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		cache: gocache.New(ttl, 2*ttl),
		now:   time.Now,
	}
}

// Report stores the latest fix of a subject's device.
func (c *Cache) Report(_ context.Context, subjectID string, fix alert.Fix) error {
	if subjectID == "" {
		return ErrEmptySubject
	}

	if !fix.ValidCoordinates() {
		return ErrInvalidFix
	}

	if fix.Timestamp.IsZero() {
		fix.Timestamp = c.now()
	}

	fix.Confidence = alert.ConfidenceDevice

	c.cache.SetDefault(subjectID, fix)

	return nil
}

// CurrentLocation returns the live fix of a subject, if one was reported within the TTL.
func (c *Cache) CurrentLocation(_ context.Context, subjectID string) (alert.Fix, bool, error) {
	value, found := c.cache.Get(subjectID)
	if !found {
		return alert.Fix{}, false, nil
	}

	fix, ok := value.(alert.Fix)

	return fix, ok, nil
}

// Forget drops the fix of a subject.
func (c *Cache) Forget(subjectID string) {
	c.cache.Delete(subjectID)
}

// Len returns the number of subjects with a cached fix, expired ones included
// until the next cleanup.
func (c *Cache) Len() int {
	return c.cache.ItemCount()
}
