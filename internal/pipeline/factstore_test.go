package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	codec, err := NewCodec("csv")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return NewStore(t.TempDir(), codec)
}

func fact(key int64, amount string) ExpenseFact {
	return ExpenseFact{
		ExpenseKey:     key,
		ExpenseAmount:  decimal.RequireFromString(amount),
		CreatedDateKey: 20200104,
	}
}

func TestMergeExpensesCreatesPartition(t *testing.T) {
	store := newTestStore(t)

	res, err := store.MergeExpenses("2020-01-04", []ExpenseFact{fact(1, "10"), fact(2, "20")})
	if err != nil {
		t.Fatalf("MergeExpenses: %v", err)
	}
	if res.Existing != 0 || res.Incoming != 2 || res.Total != 2 {
		t.Errorf("result = %+v", res)
	}

	path := store.PartitionPath(TableExpenses, "2020-01-04")
	if !strings.HasSuffix(path, filepath.Join("fact_expenses", "date=2020-01-04", "fact_expenses.csv")) {
		t.Errorf("unexpected partition path %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("partition file missing: %v", err)
	}
}

func TestMergeExpensesLastWriteWins(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.MergeExpenses("2020-01-04", []ExpenseFact{fact(1, "10"), fact(2, "20")}); err != nil {
		t.Fatal(err)
	}
	res, err := store.MergeExpenses("2020-01-04", []ExpenseFact{fact(1, "99"), fact(3, "30")})
	if err != nil {
		t.Fatal(err)
	}
	if res.Existing != 2 || res.Incoming != 2 || res.Total != 3 {
		t.Errorf("result = %+v", res)
	}

	rows, err := store.ReadPartition("2020-01-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	// Sorted by key, and key 1 carries the re-merged amount.
	if rows[0].ExpenseKey != 1 || rows[1].ExpenseKey != 2 || rows[2].ExpenseKey != 3 {
		t.Errorf("keys = %d,%d,%d", rows[0].ExpenseKey, rows[1].ExpenseKey, rows[2].ExpenseKey)
	}
	if !rows[0].ExpenseAmount.Equal(decimal.RequireFromString("99")) {
		t.Errorf("row 1 amount = %s, want 99", rows[0].ExpenseAmount)
	}
}

func TestMergeExpensesIdempotent(t *testing.T) {
	store := newTestStore(t)
	batch := []ExpenseFact{fact(1, "10"), fact(2, "20")}

	for i := 0; i < 3; i++ {
		if _, err := store.MergeExpenses("2020-01-04", batch); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := store.ReadPartition("2020-01-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("len(rows) = %d, want 2 after repeated merges", len(rows))
	}
}

func TestMergeOrdersReplacesParentRows(t *testing.T) {
	store := newTestStore(t)

	initial := []ExpenseOrderFact{
		{ExpenseOrderKey: 9001, ExpenseKey: 1, ItemDetail: "tomates"},
		{ExpenseOrderKey: 9002, ExpenseKey: 1, ItemDetail: "papas"},
		{ExpenseOrderKey: 9003, ExpenseKey: 2, ItemDetail: "gaseosa"},
	}
	if _, err := store.MergeOrders("2020-01-04", []int64{1, 2}, initial); err != nil {
		t.Fatal(err)
	}

	// Re-merge expense 1 with one line item removed: 9002 must disappear,
	// expense 2's rows must survive untouched.
	update := []ExpenseOrderFact{
		{ExpenseOrderKey: 9001, ExpenseKey: 1, ItemDetail: "tomates"},
	}
	if _, err := store.MergeOrders("2020-01-04", []int64{1}, update); err != nil {
		t.Fatal(err)
	}

	rows, err := store.ReadOrdersPartition("2020-01-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].ExpenseOrderKey != 9001 || rows[1].ExpenseOrderKey != 9003 {
		t.Errorf("order keys = %d,%d", rows[0].ExpenseOrderKey, rows[1].ExpenseOrderKey)
	}
}

func TestMergeLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.MergeExpenses("2020-01-04", []ExpenseFact{fact(1, "10")}); err != nil {
		t.Fatal(err)
	}

	dir := filepath.Dir(store.PartitionPath(TableExpenses, "2020-01-04"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestConcurrentMergesSamePartition(t *testing.T) {
	store := newTestStore(t)

	var wg sync.WaitGroup
	for i := int64(1); i <= 10; i++ {
		wg.Add(1)
		go func(key int64) {
			defer wg.Done()
			if _, err := store.MergeExpenses("2020-01-04", []ExpenseFact{fact(key, "1")}); err != nil {
				t.Errorf("merge %d: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	rows, err := store.ReadPartition("2020-01-04")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 10 {
		t.Errorf("len(rows) = %d, want 10", len(rows))
	}
}

func TestListPartitions(t *testing.T) {
	store := newTestStore(t)

	if got, err := store.ListPartitions(TableExpenses); err != nil || got != nil {
		t.Errorf("empty store: %v, %v", got, err)
	}

	for _, p := range []string{"2020-01-05", "2020-01-04", "2020-02-01"} {
		if _, err := store.MergeExpenses(p, []ExpenseFact{fact(1, "1")}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListPartitions(TableExpenses)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2020-01-04", "2020-01-05", "2020-02-01"}
	if len(got) != len(want) {
		t.Fatalf("partitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("partitions[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestValidateBatch(t *testing.T) {
	facts := []ExpenseFact{{ExpenseKey: 1}}
	orders := []ExpenseOrderFact{{ExpenseOrderKey: 9001, ExpenseKey: 1}}
	if err := ValidateBatch(facts, orders); err != nil {
		t.Errorf("valid batch: %v", err)
	}

	orphan := []ExpenseOrderFact{{ExpenseOrderKey: 9002, ExpenseKey: 2}}
	if err := ValidateBatch(facts, orphan); err == nil {
		t.Error("expected error for orphaned order")
	}
}
