package file

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

const ext = ".json"

// Store implements ports.StateStore using the local filesystem.
// Each collection is a directory under BasePath; each document is one JSON file.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".parley/state".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".parley", "state")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) dir(collection domain.Collection) string {
	return filepath.Join(s.BasePath, string(collection))
}

// path escapes the id so keys such as "+12125550100" or names with
// separators map to a single file.
func (s *Store) path(collection domain.Collection, id string) string {
	return filepath.Join(s.dir(collection), url.PathEscape(id)+ext)
}

// Save persists the document atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, collection domain.Collection, id string, doc []byte) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	dir := s.dir(collection)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure %s directory: %w", collection, err)
	}
	destPath := s.path(collection, id)

	// 1. Create Temp File in the same directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(dir, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(doc); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Rename. On Windows os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing document for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads a document back.
func (s *Store) Load(ctx context.Context, collection domain.Collection, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("document id cannot be empty")
	}

	data, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}
	return data, nil
}

// Delete removes the document file.
func (s *Store) Delete(ctx context.Context, collection domain.Collection, id string) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}

	err := os.Remove(s.path(collection, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// List returns the document IDs in a collection, sorted.
// Leftover temp files from an interrupted Save are ignored.
func (s *Store) List(ctx context.Context, collection domain.Collection) ([]string, error) {
	entries, err := os.ReadDir(s.dir(collection))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ext || strings.HasPrefix(name, "tmp-") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, ext))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
