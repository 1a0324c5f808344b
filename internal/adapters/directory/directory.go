package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/location"
)

// DefaultAuthorities are notified when a subject lists none.
//
//nolint:gochecknoglobals // Read-only defaults, copied on use.
var DefaultAuthorities = []string{"112", "police"}

var (
	// ErrEmptySubjectID is returned when a subject has no id.
	ErrEmptySubjectID = errors.New("subject id is required")
	// ErrDuplicatePhone is returned when two subjects share a number.
	ErrDuplicatePhone = errors.New("phone number belongs to another subject")
)

// Subject is one registered person.
type Subject struct {
	// ID is the subject identifier.
	ID string `yaml:"id"`
	// PhoneNumber is the subject's mobile number.
	PhoneNumber string `yaml:"phone_number"`
	// Emergency numbers to reach.
	Emergency []string `yaml:"emergency"`
	// Trusted personal contacts.
	Trusted []string `yaml:"trusted"`
	// Authorities to notify. Empty selects the defaults.
	Authorities []string `yaml:"authorities"`
}

// file is the on-disk layout.
type file struct {
	// Authorities overrides DefaultAuthorities for every subject.
	Authorities []string `yaml:"authorities"`
	// Subjects lists registered people.
	Subjects []Subject `yaml:"subjects"`
}

// Directory is a concurrency-safe subject registry.
type Directory struct {
	mu          sync.RWMutex
	subjects    map[string]Subject
	phones      map[string]string
	authorities []string
}

// New creates an empty directory.
func New(authorities ...string) *Directory {
	if len(authorities) == 0 {
		authorities = DefaultAuthorities
	}

	return &Directory{
		subjects:    make(map[string]Subject),
		phones:      make(map[string]string),
		authorities: slices.Clone(authorities),
	}
}

// Load reads a YAML directory file. An empty path yields an empty directory.
func Load(path string) (*Directory, error) {
	if path == "" {
		return New(), nil
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var f file
	if err = yaml.Unmarshal(contents, &f); err != nil {
		return nil, fmt.Errorf("unmarshal directory: %w", err)
	}

	d := New(f.Authorities...)

	for _, s := range f.Subjects {
		if err = d.Add(s); err != nil {
			return nil, fmt.Errorf("subject %q: %w", s.ID, err)
		}
	}

	return d, nil
}

// Add registers or replaces a subject.
func (d *Directory) Add(s Subject) error {
	if s.ID == "" {
		return ErrEmptySubjectID
	}

	phone := location.NormalizeNumber(s.PhoneNumber)

	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.phones[phone]; ok && phone != "" && owner != s.ID {
		return ErrDuplicatePhone
	}

	if old, ok := d.subjects[s.ID]; ok {
		delete(d.phones, location.NormalizeNumber(old.PhoneNumber))
	}

	d.subjects[s.ID] = s

	if phone != "" {
		d.phones[phone] = s.ID
	}

	return nil
}

// Len returns the number of subjects.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.subjects)
}

// EmergencyContacts returns the contacts of a subject. Unknown subjects get
// only the default authorities.
func (d *Directory) EmergencyContacts(_ context.Context, subjectID string) (alert.Contacts, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.subjects[subjectID]
	if !ok {
		return alert.Contacts{
			Emergency:   []string{},
			Trusted:     []string{},
			Authorities: slices.Clone(d.authorities),
		}, nil
	}

	authorities := s.Authorities
	if len(authorities) == 0 {
		authorities = d.authorities
	}

	return alert.Contacts{
		Emergency:   slices.Clone(s.Emergency),
		Trusted:     slices.Clone(s.Trusted),
		Authorities: slices.Clone(authorities),
	}, nil
}

// SubjectByPhone returns the subject registered for a number in any format.
func (d *Directory) SubjectByPhone(_ context.Context, phoneNumber string) (string, bool) {
	phone := location.NormalizeNumber(phoneNumber)
	if phone == "" {
		return "", false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.phones[phone]

	return id, ok
}

// PhoneNumber returns the registered number of a subject.
func (d *Directory) PhoneNumber(subjectID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.subjects[subjectID]
	if !ok || s.PhoneNumber == "" {
		return "", false
	}

	return s.PhoneNumber, true
}
