// Package extractor pulls expense documents from the Fudo API into the raw
// store, incrementally and idempotently.
package extractor

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fudodata/expense-pipeline/internal/fudo"
	"github.com/fudodata/expense-pipeline/internal/ledger"
	"github.com/fudodata/expense-pipeline/internal/rawstore"
)

// ExpenseFetcher fetches a single expense document.
// This interface enables mocking the Fudo client in tests.
type ExpenseFetcher interface {
	GetExpense(ctx context.Context, id int64) ([]byte, *fudo.Document, error)
}

// ExpensePager fetches one page of expenses at a time.
type ExpensePager interface {
	ListExpenses(ctx context.Context, page, pageSize int, filters map[string]string) (*fudo.Page, error)
}

// Extractor owns the raw store and the extraction ledger.
type Extractor struct {
	fetcher  ExpenseFetcher
	store    *rawstore.Store
	ledger   *ledger.Ledger
	failFast bool
	log      zerolog.Logger
}

// New creates an Extractor.
func New(fetcher ExpenseFetcher, store *rawstore.Store, led *ledger.Ledger, failFast bool, log zerolog.Logger) *Extractor {
	return &Extractor{
		fetcher:  fetcher,
		store:    store,
		ledger:   led,
		failFast: failFast,
		log:      log,
	}
}

// Summary reports the outcome of one extraction run.
type Summary struct {
	RunID    string  `json:"run_id"`
	StartID  int64   `json:"start_id"`
	EndID    int64   `json:"end_id"`
	Fetched  int     `json:"fetched"`
	Skipped  int     `json:"skipped"`
	NotFound int     `json:"not_found"`
	Failed   []int64 `json:"failed_ids,omitempty"`
}

// OK reports whether every record in the range was resolved.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0
}

// InitializeLedgerFromStore rebuilds the ledger from the raw store's
// directory listing. The listing is the source of truth; the ledger is a
// cache over it, so a lost ledger degrades gracefully to a scan.
func (e *Extractor) InitializeLedgerFromStore() error {
	ids, err := e.store.ScanIDs()
	if err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}
	if err := e.ledger.Rebuild(ids); err != nil {
		return fmt.Errorf("initialize ledger: %w", err)
	}
	e.log.Info().Int("documents", len(ids)).Msg("Ledger initialized from raw store scan")
	return nil
}

// ExtractRange fetches every expense in the inclusive ID interval that the
// ledger has not already resolved. For each new ID the raw document is
// written first and the ledger appended second, so a crash between the two
// steps re-fetches the record instead of losing it.
//
// A 404 marks the ID as checked-absent and is not an error. Transient
// failures abort only that ID unless fail-fast is enabled; failed IDs are
// enumerated in the summary.
func (e *Extractor) ExtractRange(ctx context.Context, startID, endID int64) (*Summary, error) {
	if startID <= 0 || endID < startID {
		return nil, fmt.Errorf("invalid ID range %d-%d", startID, endID)
	}

	summary := &Summary{
		RunID:   uuid.NewString(),
		StartID: startID,
		EndID:   endID,
	}

	e.log.Info().
		Str("run_id", summary.RunID).
		Int64("start_id", startID).
		Int64("end_id", endID).
		Msg("Starting range extraction")

	for id := startID; id <= endID; id++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if e.ledger.HasChecked(id) {
			summary.Skipped++
			continue
		}

		raw, _, err := e.fetcher.GetExpense(ctx, id)
		switch {
		case errors.Is(err, fudo.ErrNotFound):
			if err := e.ledger.MarkAbsent(id); err != nil {
				return summary, err
			}
			summary.NotFound++
			e.log.Info().Int64("expense_id", id).Msg("Expense not found upstream")
			continue
		case err != nil:
			summary.Failed = append(summary.Failed, id)
			e.log.Error().
				Err(err).
				Int64("expense_id", id).
				Bool("transient", fudo.IsTransient(err)).
				Msg("Expense fetch failed")
			if e.failFast {
				return summary, fmt.Errorf("fetch expense %d: %w", id, err)
			}
			continue
		}

		// Raw file first, ledger second.
		if err := e.store.Write(id, raw); err != nil {
			return summary, err
		}
		if err := e.ledger.MarkFetched(id); err != nil {
			return summary, err
		}
		summary.Fetched++
	}

	e.log.Info().
		Str("run_id", summary.RunID).
		Int("fetched", summary.Fetched).
		Int("skipped", summary.Skipped).
		Int("not_found", summary.NotFound).
		Int("failed", len(summary.Failed)).
		Msg("Range extraction finished")

	return summary, nil
}

// NextRange computes the next unfetched ID interval from the ledger.
// IDs confirmed absent count as checked, so the range starts after the
// highest resolved ID.
func (e *Extractor) NextRange(batchSize int) (int64, int64) {
	start := e.ledger.MaxCheckedID() + 1
	return start, start + int64(batchSize) - 1
}
