// Package cache provides local storage for organization data (user, forum
// and team lists) so large organizations don't have to refetch everything on
// startup.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage persists one opaque blob per entity kind.
type Storage interface {
	// Load returns the blob stored for a kind. The boolean reports whether
	// anything was stored; a missing kind is not an error.
	Load(kind string) ([]byte, bool, error)
	// Save stores the blob for a kind, replacing any previous value.
	Save(kind string, data []byte) error
}

// FileStorage keeps one JSON file per entity kind under a root directory.
type FileStorage struct {
	rootDir string
	prefix  string
}

// NewFileStorage creates a file-backed storage rooted at dir. All files are
// named prefix + kind + ".json".
func NewFileStorage(dir, prefix string) *FileStorage {
	return &FileStorage{rootDir: dir, prefix: prefix}
}

func (s *FileStorage) path(kind string) string {
	return filepath.Join(s.rootDir, s.prefix+kind+".json")
}

// Load returns the blob stored for a kind, if any.
func (s *FileStorage) Load(kind string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(kind))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache file: %w", err)
	}
	return data, true, nil
}

// Save stores the blob for a kind, creating the root directory if needed.
func (s *FileStorage) Save(kind string, data []byte) error {
	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(s.path(kind), data, 0o644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	return nil
}
