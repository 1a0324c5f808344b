package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/domain/alert"
	"github.com/oshokin/sos-engine/internal/service/evidence"
)

// refScheme prefixes references produced by the store.
const refScheme = "file://"

// dirPermissions is used for evidence directories.
const dirPermissions = 0o700

// errEmptyRoot is returned when the store has no root directory.
var errEmptyRoot = errors.New("evidence directory is not set")

// Store writes each payload into its own file under a root directory.
type Store struct {
	root string
}

// New creates a store rooted at dir.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errEmptyRoot
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve evidence directory: %w", err)
	}

	return &Store{root: root}, nil
}

// Store saves data and returns a file:// reference to it.
func (s *Store) Store(ctx context.Context, data []byte, kind alert.EvidenceKind, alertID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	target := filepath.Join(s.root, filepath.FromSlash(evidence.ObjectKey(alertID, kind)))

	if err := os.MkdirAll(filepath.Dir(target), dirPermissions); err != nil {
		return "", fmt.Errorf("create evidence directory: %w", err)
	}

	// O_EXCL keeps stored evidence immutable.
	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return "", fmt.Errorf("create evidence file: %w", err)
	}

	if _, err = file.Write(data); err != nil {
		_ = file.Close()

		return "", fmt.Errorf("write evidence file: %w", err)
	}

	if err = file.Sync(); err != nil {
		_ = file.Close()

		return "", fmt.Errorf("sync evidence file: %w", err)
	}

	if err = file.Close(); err != nil {
		return "", fmt.Errorf("close evidence file: %w", err)
	}

	return refScheme + filepath.ToSlash(target), nil
}
