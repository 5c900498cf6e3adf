package gcs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// Syncer mirrors the local fact store and extraction ledger to a bucket.
// Object names reproduce the local layout relative to the synced root, so
// the Hive partition structure survives the round trip.
type Syncer struct {
	storage StorageService
	bucket  string
	log     zerolog.Logger
}

// SyncResult reports what one sync pushed.
type SyncResult struct {
	Uploaded []string
}

// NewSyncer wires a syncer for the given bucket.
func NewSyncer(storage StorageService, bucket string, log zerolog.Logger) *Syncer {
	return &Syncer{storage: storage, bucket: bucket, log: log}
}

// SyncDir uploads every regular file under dir, naming objects
// <prefix>/<path relative to dir>. Hidden files are skipped.
func (s *Syncer) SyncDir(ctx context.Context, dir, prefix string) (*SyncResult, error) {
	result := &SyncResult{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name()[0] == '.' {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		object := prefix + "/" + filepath.ToSlash(rel)

		if err := s.storage.UploadFile(ctx, s.bucket, object, path); err != nil {
			return fmt.Errorf("upload %q: %w", object, err)
		}
		s.log.Debug().Str("object", object).Msg("uploaded")
		result.Uploaded = append(result.Uploaded, object)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync %q to gs://%s/%s: %w", dir, s.bucket, prefix, err)
	}

	s.log.Info().
		Str("bucket", s.bucket).
		Str("prefix", prefix).
		Int("files", len(result.Uploaded)).
		Msg("directory synced")

	return result, nil
}

// PushLedger uploads the ledger file under the given object name.
func (s *Syncer) PushLedger(ctx context.Context, ledgerPath, objectName string) error {
	if err := s.storage.UploadFile(ctx, s.bucket, objectName, ledgerPath); err != nil {
		return fmt.Errorf("push ledger: %w", err)
	}
	s.log.Info().Str("object", objectName).Msg("ledger pushed")
	return nil
}

// PullLedger downloads the remote ledger into ledgerPath, creating parent
// directories as needed. A missing remote object is not an error: a fresh
// environment simply starts with an empty ledger.
func (s *Syncer) PullLedger(ctx context.Context, ledgerPath, objectName string) error {
	data, err := s.storage.DownloadFile(ctx, s.bucket, objectName)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			s.log.Info().Str("object", objectName).Msg("no remote ledger, starting fresh")
			return nil
		}
		return fmt.Errorf("pull ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(ledgerPath), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := os.WriteFile(ledgerPath, data, 0o644); err != nil {
		return fmt.Errorf("write ledger %q: %w", ledgerPath, err)
	}

	s.log.Info().Str("object", objectName).Int("bytes", len(data)).Msg("ledger pulled")
	return nil
}

// ListRemote returns the object names currently under a prefix.
func (s *Syncer) ListRemote(ctx context.Context, prefix string) ([]string, error) {
	return s.storage.ListObjects(ctx, s.bucket, prefix)
}
