package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/fudodata/expense-pipeline/internal/logger"
)

type mockStorage struct {
	objects   map[string][]byte
	uploadErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: make(map[string][]byte)}
}

func (m *mockStorage) UploadFile(_ context.Context, bucket, object, path string) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m.objects[bucket+"/"+object] = data
	return nil
}

func (m *mockStorage) DownloadFile(_ context.Context, bucket, object string) ([]byte, error) {
	data, ok := m.objects[bucket+"/"+object]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, object, ErrObjectNotFound)
	}
	return data, nil
}

func (m *mockStorage) ListObjects(_ context.Context, bucket, prefix string) ([]string, error) {
	var names []string
	for key := range m.objects {
		rest, ok := cutBucket(key, bucket)
		if !ok {
			continue
		}
		if len(rest) >= len(prefix) && rest[:len(prefix)] == prefix {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func cutBucket(key, bucket string) (string, bool) {
	prefix := bucket + "/"
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

func TestSyncDirMirrorsLayout(t *testing.T) {
	dir := t.TempDir()
	partition := filepath.Join(dir, "fact_expenses", "date=2020-01-04")
	if err := os.MkdirAll(partition, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partition, "fact_expenses.csv"), []byte("expense_key\n1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Hidden temp files must not be uploaded.
	if err := os.WriteFile(filepath.Join(partition, ".fact_expenses-123.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	storage := newMockStorage()
	syncer := NewSyncer(storage, "expense-data", logger.NewWithWriter(io.Discard))

	result, err := syncer.SyncDir(context.Background(), dir, "clean")
	if err != nil {
		t.Fatalf("SyncDir: %v", err)
	}
	if len(result.Uploaded) != 1 {
		t.Fatalf("Uploaded = %v, want 1 object", result.Uploaded)
	}
	want := "clean/fact_expenses/date=2020-01-04/fact_expenses.csv"
	if result.Uploaded[0] != want {
		t.Errorf("object = %q, want %q", result.Uploaded[0], want)
	}
	if _, ok := storage.objects["expense-data/"+want]; !ok {
		t.Error("object not present in mock storage")
	}
}

func TestSyncDirPropagatesUploadError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "f.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	storage := newMockStorage()
	storage.uploadErr = errors.New("quota exceeded")
	syncer := NewSyncer(storage, "expense-data", logger.NewWithWriter(io.Discard))

	if _, err := syncer.SyncDir(context.Background(), dir, "clean"); err == nil {
		t.Error("expected upload error to propagate")
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "logs", "extracted_expenses_log.txt")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("1\n2\n3 absent\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	storage := newMockStorage()
	syncer := NewSyncer(storage, "expense-data", logger.NewWithWriter(io.Discard))

	if err := syncer.PushLedger(context.Background(), src, "logs/extracted_expenses_log.txt"); err != nil {
		t.Fatalf("PushLedger: %v", err)
	}

	dst := filepath.Join(dir, "restored", "ledger.txt")
	if err := syncer.PullLedger(context.Background(), dst, "logs/extracted_expenses_log.txt"); err != nil {
		t.Fatalf("PullLedger: %v", err)
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1\n2\n3 absent\n" {
		t.Errorf("restored ledger = %q", data)
	}
}

func TestPullLedgerMissingRemoteIsNoop(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "ledger.txt")

	syncer := NewSyncer(newMockStorage(), "expense-data", logger.NewWithWriter(io.Discard))
	if err := syncer.PullLedger(context.Background(), dst, "logs/missing.txt"); err != nil {
		t.Fatalf("PullLedger: %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("local ledger should not be created when remote is missing")
	}
}

func TestListRemote(t *testing.T) {
	storage := newMockStorage()
	storage.objects["expense-data/clean/a.csv"] = []byte("x")
	storage.objects["expense-data/raw/expense_1.json"] = []byte("{}")

	syncer := NewSyncer(storage, "expense-data", logger.NewWithWriter(io.Discard))
	names, err := syncer.ListRemote(context.Background(), "clean/")
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "clean/a.csv" {
		t.Errorf("names = %v", names)
	}
}
