package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
)

// Repository defines persistence operations for terminal alerts.
type Repository interface {
	Save(ctx context.Context, a *alert.Alert) error
	Load(ctx context.Context, id string) (*alert.Alert, error)
}

// FileRepository persists terminal alerts as JSON lines on disk.
type FileRepository struct {
	// path is the filesystem location of the archive.
	path string
	// mu protects concurrent access to the archive file.
	mu sync.Mutex
}

// maxLineSize bounds a single archived alert.
const maxLineSize = 16 << 20

// NewFileRepository creates a repository that appends to the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Save appends the alert to the archive.
func (r *FileRepository) Save(_ context.Context, a *alert.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("open archive file: %w", err)
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()

		return fmt.Errorf("write archive file: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close archive file: %w", err)
	}

	return nil
}

// Load returns the last archived version of an alert.
// It returns alert.ErrNotFound when the archive does not contain the id.
func (r *FileRepository) Load(_ context.Context, id string) (*alert.Alert, error) {
	var found *alert.Alert

	err := r.scan(func(a *alert.Alert) {
		if a.ID == id {
			found = a
		}
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		return nil, alert.ErrNotFound
	}

	return found, nil
}

// List returns every archived alert in write order.
func (r *FileRepository) List(_ context.Context) ([]*alert.Alert, error) {
	var result []*alert.Alert

	err := r.scan(func(a *alert.Alert) {
		result = append(result, a)
	})

	return result, err
}

func (r *FileRepository) scan(fn func(a *alert.Alert)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.Open(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("open archive file: %w", err)
	}

	defer file.Close() //nolint:errcheck // Read-only handle.

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var a alert.Alert
		if err = json.Unmarshal(scanner.Bytes(), &a); err != nil {
			return fmt.Errorf("decode archive line %d: %w", line, err)
		}

		fn(&a)
	}

	if err = scanner.Err(); err != nil {
		return fmt.Errorf("read archive file: %w", err)
	}

	return nil
}
