// Package ledger tracks which expense IDs have already been extracted.
//
// The ledger is an append-only text file, one entry per line: a bare ID for a
// successfully fetched document, or "<id> absent" for an ID the upstream API
// answered 404 for. An in-memory index is rebuilt from the file at open time.
// The raw store's directory listing remains the source of truth; when the
// ledger file is missing it can be rebuilt from a scan.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const absentMark = "absent"

type status int

const (
	statusFetched status = iota
	statusAbsent
)

// Ledger is a durable set of already-checked expense IDs.
type Ledger struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries map[int64]status
}

// Open loads the ledger at path, creating an empty one if none exists.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:    path,
		entries: make(map[int64]status),
	}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read ledger %q: %w", path, err)
	}
	if err == nil {
		scanner := bufio.NewScanner(strings.NewReader(string(data)))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			id, err := strconv.ParseInt(fields[0], 10, 64)
			if err != nil {
				continue
			}
			if len(fields) > 1 && fields[1] == absentMark {
				l.entries[id] = statusAbsent
			} else {
				l.entries[id] = statusFetched
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q for append: %w", path, err)
	}
	l.file = f

	return l, nil
}

// Close releases the underlying file handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Ledger) append(line string) error {
	if l.file == nil {
		return fmt.Errorf("ledger %q is closed", l.path)
	}
	if _, err := l.file.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("append to ledger %q: %w", l.path, err)
	}
	// Flush before acknowledging: a crash after the raw file write but
	// before this sync re-fetches the record, which is safe.
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync ledger %q: %w", l.path, err)
	}
	return nil
}

// MarkFetched records an ID as successfully extracted. Call this only after
// the raw document has been durably written.
func (l *Ledger) MarkFetched(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.entries[id] == statusFetched {
		return nil
	}
	if err := l.append(strconv.FormatInt(id, 10)); err != nil {
		return err
	}
	l.entries[id] = statusFetched
	return nil
}

// MarkAbsent records an ID the API returned 404 for, so later runs skip it.
func (l *Ledger) MarkAbsent(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[id]; ok {
		return nil
	}
	if err := l.append(fmt.Sprintf("%d %s", id, absentMark)); err != nil {
		return err
	}
	l.entries[id] = statusAbsent
	return nil
}

// HasFetched reports whether the ID has a raw document on record.
func (l *Ledger) HasFetched(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.entries[id]
	return ok && st == statusFetched
}

// HasChecked reports whether the ID has been resolved either way
// (fetched or confirmed absent).
func (l *Ledger) HasChecked(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[id]
	return ok
}

// FetchedIDs returns all fetched IDs in ascending order.
func (l *Ledger) FetchedIDs() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.entries))
	for id, st := range l.entries {
		if st == statusFetched {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MaxCheckedID returns the highest ID on record, or 0 for an empty ledger.
func (l *Ledger) MaxCheckedID() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var max int64
	for id := range l.entries {
		if id > max {
			max = id
		}
	}
	return max
}

// Len returns the number of fetched entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, st := range l.entries {
		if st == statusFetched {
			n++
		}
	}
	return n
}

// Rebuild repopulates the ledger from a raw-store scan. Used when the ledger
// file was lost: every document on disk is recorded as fetched. Entries
// already in the ledger are preserved.
func (l *Ledger) Rebuild(ids []int64) error {
	for _, id := range ids {
		if err := l.MarkFetched(id); err != nil {
			return err
		}
	}
	return nil
}
