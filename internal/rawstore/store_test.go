package rawstore

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestWriteRead(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	doc := []byte(`{"data": {"type": "Expense", "id": "7"}}`)
	if err := store.Write(7, doc); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := store.Read(7)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("Read = %s, want %s", got, doc)
	}

	if !store.Exists(7) {
		t.Error("Exists(7) = false after write")
	}
	if store.Exists(8) {
		t.Error("Exists(8) = true, never written")
	}
}

func TestWrite_Overwrite(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := store.Write(1, []byte(`old`)); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if err := store.Write(1, []byte(`new`)); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	got, err := store.Read(1)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Read = %s, want new", got)
	}

	ids, err := store.ScanIDs()
	if err != nil {
		t.Fatalf("ScanIDs failed: %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("overwrite produced %d files, want 1", len(ids))
	}
}

func TestWrite_NoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := store.Write(5, []byte(`{}`)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "expense_5.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want only expense_5.json", names)
	}
}

func TestScanIDs(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, id := range []int64{12, 3, 100} {
		if err := store.Write(id, []byte(`{}`)); err != nil {
			t.Fatalf("Write(%d) failed: %v", id, err)
		}
	}

	// Unrelated files must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "expense_abc.json"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ids, err := store.ScanIDs()
	if err != nil {
		t.Fatalf("ScanIDs failed: %v", err)
	}
	want := []int64{3, 12, 100}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ScanIDs = %v, want %v", ids, want)
	}
}
