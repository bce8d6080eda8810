// Package artifact persists generated images and hands back opaque
// references. Housekeeping of stored files is external; a missing file on
// read is a normal condition, not corruption.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound is returned when a reference no longer resolves to a file.
var ErrNotFound = errors.New("artifact not found")

// Store persists and retrieves generated artifacts by opaque reference.
type Store interface {
	Save(taskID string, data []byte) (ref string, err error)
	Open(ref string) ([]byte, error)
}

// FSStore writes PNGs under a single output directory, one file per task.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Save(taskID string, data []byte) (string, error) {
	path := filepath.Join(s.dir, taskID+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	return path, nil
}

func (s *FSStore) Open(ref string) ([]byte, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact %s: %w", ref, err)
	}
	return data, nil
}
