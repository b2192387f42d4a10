package logstore

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
)

const (
	liveExt    = ".log"
	archiveExt = ".gz.b64"
)

var (
	ErrNotFound  = errors.New("log file not found")
	ErrExists    = errors.New("archive already exists")
	ErrEmptyLog  = errors.New("log file is empty")
	ErrInvalidID = errors.New("invalid log id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Store keeps one append-only log file per check plus gzip+base64 archives,
// all in a single directory. Operations on the same file id are serialized;
// different ids proceed in parallel.
type Store struct {
	dir string

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	archived map[string]int64 // bytes of the live log covered by the last archive
}

// New creates a log store in dir
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}
	return &Store{
		dir:      dir,
		locks:    make(map[string]*sync.Mutex),
		archived: make(map[string]int64),
	}, nil
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = new(sync.Mutex)
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Store) livePath(id string) string    { return filepath.Join(s.dir, id+liveExt) }
func (s *Store) archivePath(id string) string { return filepath.Join(s.dir, id+archiveExt) }

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// Append writes line and a newline to the live log, creating it if needed
func (s *Store) Append(id, line string) error {
	if err := validateID(id); err != nil {
		return err
	}
	defer s.lock(id)()

	f, err := os.OpenFile(s.livePath(id), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("could not open log %s for appending: %w", id, err)
	}

	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("could not append to log %s: %w", id, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close log %s after appending: %w", id, err)
	}
	return nil
}

// List returns the ids of live logs, and of archives when includeArchived is set
func (s *Store) List(includeArchived bool) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, liveExt):
			ids = append(ids, strings.TrimSuffix(name, liveExt))
		case includeArchived && strings.HasSuffix(name, archiveExt):
			ids = append(ids, strings.TrimSuffix(name, archiveExt))
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Read returns the current content of a live log
func (s *Store) Read(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	defer s.lock(id)()

	data, err := os.ReadFile(s.livePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("log %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read log %s: %w", id, err)
	}
	return string(data), nil
}

// Compress writes the full content of the live log sourceID into a new
// archive archiveID. The live log is left untouched.
func (s *Store) Compress(sourceID, archiveID string) error {
	if err := validateID(sourceID); err != nil {
		return err
	}
	if err := validateID(archiveID); err != nil {
		return err
	}
	defer s.lock(sourceID)()

	data, err := os.ReadFile(s.livePath(sourceID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("log %s: %w", sourceID, ErrNotFound)
		}
		return fmt.Errorf("failed to read log %s: %w", sourceID, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("log %s: %w", sourceID, ErrEmptyLog)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("failed to compress log %s: %w", sourceID, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to compress log %s: %w", sourceID, err)
	}

	f, err := os.OpenFile(s.archivePath(archiveID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("archive %s: %w", archiveID, ErrExists)
		}
		return fmt.Errorf("failed to create archive %s: %w", archiveID, err)
	}

	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(buf.Bytes())); err != nil {
		f.Close()
		os.Remove(s.archivePath(archiveID))
		return fmt.Errorf("failed to write archive %s: %w", archiveID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(s.archivePath(archiveID))
		return fmt.Errorf("failed to close archive %s: %w", archiveID, err)
	}

	s.mu.Lock()
	s.archived[sourceID] = int64(len(data))
	s.mu.Unlock()

	return nil
}

// Decompress returns the original content of an archive
func (s *Store) Decompress(archiveID string) (string, error) {
	if err := validateID(archiveID); err != nil {
		return "", err
	}

	encoded, err := os.ReadFile(s.archivePath(archiveID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("archive %s: %w", archiveID, ErrNotFound)
		}
		return "", fmt.Errorf("failed to read archive %s: %w", archiveID, err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return "", fmt.Errorf("archive %s is not valid base64: %w", archiveID, err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("archive %s is not valid gzip: %w", archiveID, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("failed to decompress archive %s: %w", archiveID, err)
	}
	return string(out), nil
}

// Truncate empties the live log. Lines appended after the last Compress of
// this log are kept so that they reach the next archive.
func (s *Store) Truncate(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	defer s.lock(id)()

	s.mu.Lock()
	covered, ok := s.archived[id]
	delete(s.archived, id)
	s.mu.Unlock()

	path := s.livePath(id)
	if !ok {
		if err := os.Truncate(path, 0); err != nil {
			return truncateErr(id, err)
		}
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return truncateErr(id, err)
	}
	var tail []byte
	if int64(len(data)) > covered {
		tail = data[covered:]
	}
	if err := os.WriteFile(path, tail, 0o644); err != nil {
		return truncateErr(id, err)
	}
	return nil
}

func truncateErr(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("log %s: %w", id, ErrNotFound)
	}
	return fmt.Errorf("failed to truncate log %s: %w", id, err)
}
