package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store manages the partitioned fact tables on local disk using the Hive
// layout <root>/<table>/date=<YYYY-MM-DD>/<table>.<ext>. All merges rewrite
// a partition atomically: the merged rows go to a temp file in the partition
// directory which is then renamed over the live file. A mutex per partition
// serializes concurrent merges into the same day while leaving distinct days
// free to proceed in parallel.
type Store struct {
	root  string
	codec Codec

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// MergeResult reports what one partition merge did.
type MergeResult struct {
	Partition string
	Existing  int
	Incoming  int
	Total     int
}

// NewStore creates a fact store rooted at dir.
func NewStore(root string, codec Codec) *Store {
	return &Store{
		root:  root,
		codec: codec,
		locks: make(map[string]*sync.Mutex),
	}
}

// Root returns the fact store's base directory.
func (s *Store) Root() string { return s.root }

func (s *Store) partitionDir(table, partition string) string {
	return filepath.Join(s.root, table, "date="+partition)
}

// PartitionPath returns the data file path for a table partition.
func (s *Store) PartitionPath(table, partition string) string {
	return filepath.Join(s.partitionDir(table, partition), table+"."+s.codec.Ext())
}

func (s *Store) lock(table, partition string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := table + "/" + partition
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// MergeExpenses unions incoming parent rows into a partition. Rows are keyed
// by expense_key; an incoming row replaces any existing row with the same
// key. The rewrite is atomic, so a crash leaves either the old file or the
// new one, never a torn partition.
func (s *Store) MergeExpenses(partition string, rows []ExpenseFact) (*MergeResult, error) {
	l := s.lock(TableExpenses, partition)
	l.Lock()
	defer l.Unlock()

	path := s.PartitionPath(TableExpenses, partition)

	var existing []ExpenseFact
	if _, err := os.Stat(path); err == nil {
		existing, err = s.codec.ReadExpenses(path)
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	byKey := make(map[int64]ExpenseFact, len(existing)+len(rows))
	for _, r := range existing {
		byKey[r.ExpenseKey] = r
	}
	for _, r := range rows {
		byKey[r.ExpenseKey] = r
	}

	merged := make([]ExpenseFact, 0, len(byKey))
	for _, r := range byKey {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ExpenseKey < merged[j].ExpenseKey })

	if err := s.rewrite(TableExpenses, partition, func(tmp string) error {
		return s.codec.WriteExpenses(tmp, merged)
	}); err != nil {
		return nil, err
	}

	return &MergeResult{
		Partition: partition,
		Existing:  len(existing),
		Incoming:  len(rows),
		Total:     len(merged),
	}, nil
}

// MergeOrders replaces the line items of the given parent expenses within a
// partition. Existing rows whose expense_key is in parentKeys are dropped
// before the incoming rows are appended, so a re-fetched expense that lost a
// line item does not leave the stale item behind.
func (s *Store) MergeOrders(partition string, parentKeys []int64, rows []ExpenseOrderFact) (*MergeResult, error) {
	l := s.lock(TableExpenseOrders, partition)
	l.Lock()
	defer l.Unlock()

	path := s.PartitionPath(TableExpenseOrders, partition)

	var existing []ExpenseOrderFact
	if _, err := os.Stat(path); err == nil {
		existing, err = s.codec.ReadOrders(path)
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}

	replaced := make(map[int64]bool, len(parentKeys))
	for _, k := range parentKeys {
		replaced[k] = true
	}

	merged := make([]ExpenseOrderFact, 0, len(existing)+len(rows))
	for _, r := range existing {
		if !replaced[r.ExpenseKey] {
			merged = append(merged, r)
		}
	}
	merged = append(merged, rows...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].ExpenseOrderKey < merged[j].ExpenseOrderKey })

	if err := s.rewrite(TableExpenseOrders, partition, func(tmp string) error {
		return s.codec.WriteOrders(tmp, merged)
	}); err != nil {
		return nil, err
	}

	return &MergeResult{
		Partition: partition,
		Existing:  len(existing),
		Incoming:  len(rows),
		Total:     len(merged),
	}, nil
}

// rewrite writes a partition file through a temp file in the same directory
// and renames it into place.
func (s *Store) rewrite(table, partition string, write func(tmp string) error) error {
	dir := s.partitionDir(table, partition)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create partition dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+table+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file in %q: %w", dir, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.PartitionPath(table, partition)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit partition %s/%s: %w", table, partition, err)
	}
	return nil
}

// ReadPartition loads one expenses partition.
func (s *Store) ReadPartition(partition string) ([]ExpenseFact, error) {
	return s.codec.ReadExpenses(s.PartitionPath(TableExpenses, partition))
}

// ReadOrdersPartition loads one expense-orders partition.
func (s *Store) ReadOrdersPartition(partition string) ([]ExpenseOrderFact, error) {
	return s.codec.ReadOrders(s.PartitionPath(TableExpenseOrders, partition))
}

// ListPartitions returns the sorted partition dates present for a table.
func (s *Store) ListPartitions(table string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, table))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions for %s: %w", table, err)
	}

	var partitions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name, ok := strings.CutPrefix(e.Name(), "date=")
		if !ok {
			continue
		}
		partitions = append(partitions, name)
	}
	sort.Strings(partitions)
	return partitions, nil
}
