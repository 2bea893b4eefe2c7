package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileStorage archives log digests in a local directory
type FileStorage struct {
	dir string
}

var _ StorageInterface = (*FileStorage)(nil)

// NewFileStorage creates dir when missing and archives into it
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		return nil, fmt.Errorf("archive directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("invalid archive name %q", filename)
	}
	return filepath.Join(s.dir, filename), nil
}

// Store writes data to filename, replacing any earlier archive of that name
func (s *FileStorage) Store(ctx context.Context, filename string, data []byte) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to store %s: %w", filename, err)
	}

	logrus.Infof("Archived %s to %s", filename, s.dir)
	return nil
}

// Retrieve reads an archived file
func (s *FileStorage) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	path, err := s.path(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("archive %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	return data, nil
}

// List returns the archived names starting with prefix, sorted
func (s *FileStorage) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".tmp") || !strings.HasPrefix(name, prefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes an archived file. Removing a missing file is not an error.
func (s *FileStorage) Delete(ctx context.Context, filename string) error {
	path, err := s.path(filename)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", filename, err)
	}
	return nil
}
