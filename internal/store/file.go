package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const recordExt = ".json"

// FileStore keeps one JSON file per record under <baseDir>/<collection>/<id>.json
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file backed store rooted at baseDir
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(collection, id string) string {
	return filepath.Join(s.baseDir, collection, id+recordExt)
}

// Create writes a new record file, failing if it already exists. The record
// appears fully written or not at all.
func (s *FileStore) Create(_ context.Context, collection, id string, data []byte) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.baseDir, collection), 0o755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}

	tmp, err := s.writeTemp(collection, id, data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	// link fails when the target exists, unlike rename
	if err := os.Link(tmp, s.path(collection, id)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrExists)
		}
		return fmt.Errorf("failed to create %s/%s: %w", collection, id, err)
	}
	return nil
}

// Read returns the contents of a record file
func (s *FileStore) Read(_ context.Context, collection, id string) ([]byte, error) {
	if err := validateKey(collection, id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Update replaces an existing record file. Readers see either the old or the
// new content, never a partial write.
func (s *FileStore) Update(_ context.Context, collection, id string, data []byte) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	path := s.path(collection, id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("failed to open %s/%s for update: %w", collection, id, err)
	}

	tmp, err := s.writeTemp(collection, id, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// writeTemp writes data to a synced temporary file next to the record. The
// name does not end in the record extension so List never sees it.
func (s *FileStore) writeTemp(collection, id string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Join(s.baseDir, collection), "."+id+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if err == nil {
		err = f.Chmod(0o644)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}
	return f.Name(), nil
}

// Delete removes a record file
func (s *FileStore) Delete(_ context.Context, collection, id string) error {
	if err := validateKey(collection, id); err != nil {
		return err
	}

	if err := os.Remove(s.path(collection, id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// List returns the sorted record ids of a collection. A collection that was
// never written to is empty rather than an error.
func (s *FileStore) List(_ context.Context, collection string) ([]string, error) {
	if err := validateKey(collection, ""); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Join(s.baseDir, collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, recordExt))
	}
	sort.Strings(ids)

	return ids, nil
}
