package chain

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/oshokin/sos-engine/internal/config"
)

// maxLineSize bounds a single stored entry.
const maxLineSize = 64 * 1024

// memoryLog keeps entries in a slice.
type memoryLog struct {
	mu      sync.RWMutex
	entries []Entry
}

func (l *memoryLog) append(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)

	return nil
}

func (l *memoryLog) scan(fn func(entry Entry) error) error {
	l.mu.RLock()
	entries := slices.Clone(l.entries)
	l.mu.RUnlock()

	for _, entry := range entries {
		if err := fn(entry); err != nil {
			return err
		}
	}

	return nil
}

// fileLog appends entries to a JSON-lines file.
type fileLog struct {
	// path is the filesystem location of the log.
	path string
	// mu serialises writers.
	mu sync.Mutex
}

func newFileLog(path string) *fileLog {
	return &fileLog{
		path: filepath.Clean(path),
	}
}

func (l *fileLog) append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode chain entry: %w", err)
	}

	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("open chain file: %w", err)
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()

		return fmt.Errorf("write chain file: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("close chain file: %w", err)
	}

	return nil
}

// scan reads without the writer lock. Callers stop at a known length,
// so a line still being appended is never decoded.
func (l *fileLog) scan(fn func(entry Entry) error) error {
	file, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("open chain file: %w", err)
	}

	defer file.Close() //nolint:errcheck // Read-only handle.

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4*1024), maxLineSize)

	for line := 1; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var entry Entry
		if err = json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fmt.Errorf("decode chain line %d: %w", line, err)
		}

		if err = fn(entry); err != nil {
			return err
		}
	}

	if err = scanner.Err(); err != nil {
		return fmt.Errorf("read chain file: %w", err)
	}

	return nil
}
