// Package rawstore persists raw expense documents, one JSON file per source ID.
package rawstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	filePrefix = "expense_"
	fileSuffix = ".json"
)

// Store is a directory of raw expense documents. File names are derived
// deterministically from the source ID, so the directory listing doubles as
// the authoritative record of what has been fetched.
type Store struct {
	dir string
}

// New opens (creating if needed) a raw store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw store directory %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for the given expense ID.
func (s *Store) Path(id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", filePrefix, id, fileSuffix))
}

// Exists reports whether a document for the given ID is present.
func (s *Store) Exists(id int64) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// Write persists a raw document. The write goes to a temporary file in the
// same directory and is renamed into place, so readers never observe a
// partial document. Re-writing an existing ID replaces it.
func (s *Store) Write(id int64, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf(".%s%d-*", filePrefix, id))
	if err != nil {
		return fmt.Errorf("create temp file for expense %d: %w", id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write expense %d: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for expense %d: %w", id, err)
	}

	if err := os.Rename(tmpName, s.Path(id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename expense %d into place: %w", id, err)
	}

	return nil
}

// Read returns the raw document for the given ID.
func (s *Store) Read(id int64) ([]byte, error) {
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		return nil, fmt.Errorf("read expense %d: %w", id, err)
	}
	return data, nil
}

// ScanIDs lists every expense ID present in the store, ascending.
// Files that do not match the expense_<id>.json pattern are ignored.
func (s *Store) ScanIDs() ([]int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan raw store %q: %w", s.dir, err)
	}

	var ids []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
