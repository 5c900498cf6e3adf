package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fudodata/expense-pipeline/internal/fudo"
	"github.com/fudodata/expense-pipeline/internal/rawstore"
)

// RejectedRecord records a document the processor refused to flatten.
type RejectedRecord struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}

// ProcessSummary reports the outcome of one processing run.
type ProcessSummary struct {
	RunID      string           `json:"run_id"`
	StartID    int64            `json:"start_id"`
	EndID      int64            `json:"end_id"`
	Processed  int              `json:"processed"`
	Rejected   []RejectedRecord `json:"rejected,omitempty"`
	Partitions map[string]int   `json:"partitions"` // partition date -> parent rows merged
	Duration   time.Duration    `json:"duration_ns"`
}

// OK reports whether the run completed with no rejected records.
func (s *ProcessSummary) OK() bool {
	return len(s.Rejected) == 0
}

// Processor flattens raw documents into fact rows and merges them into the
// partitioned fact store.
type Processor struct {
	raw   *rawstore.Store
	facts *Store
	loc   *time.Location
	field PartitionField
	log   zerolog.Logger
}

// NewProcessor wires a processor over a raw store and a fact store.
func NewProcessor(raw *rawstore.Store, facts *Store, loc *time.Location, field PartitionField, log zerolog.Logger) *Processor {
	return &Processor{raw: raw, facts: facts, loc: loc, field: field, log: log}
}

type partitionBatch struct {
	facts      []ExpenseFact
	orders     []ExpenseOrderFact
	parentKeys []int64
}

// ProcessRange flattens every raw document whose ID falls in [startID, endID]
// and merges the rows into the fact store. Malformed documents are rejected
// and reported; they never abort the run. Merges into distinct partitions
// run in parallel.
func (p *Processor) ProcessRange(ctx context.Context, startID, endID int64) (*ProcessSummary, error) {
	if startID < 1 || endID < startID {
		return nil, fmt.Errorf("invalid ID range [%d, %d]", startID, endID)
	}

	start := time.Now()
	summary := &ProcessSummary{
		RunID:      uuid.NewString(),
		StartID:    startID,
		EndID:      endID,
		Partitions: make(map[string]int),
	}

	ids, err := p.raw.ScanIDs()
	if err != nil {
		return nil, err
	}

	batches := make(map[string]*partitionBatch)
	for _, id := range ids {
		if id < startID || id > endID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fact, orders, err := p.flattenOne(id)
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				p.log.Warn().Int64("expense_id", id).Str("reason", malformed.Reason).Msg("rejecting malformed document")
				summary.Rejected = append(summary.Rejected, RejectedRecord{ID: id, Reason: malformed.Error()})
				continue
			}
			return nil, err
		}

		partition, err := PartitionKey(fact, p.field)
		if err != nil {
			p.log.Warn().Int64("expense_id", id).Err(err).Msg("rejecting unpartitionable document")
			summary.Rejected = append(summary.Rejected, RejectedRecord{ID: id, Reason: err.Error()})
			continue
		}

		b, ok := batches[partition]
		if !ok {
			b = &partitionBatch{}
			batches[partition] = b
		}
		b.facts = append(b.facts, *fact)
		b.orders = append(b.orders, orders...)
		b.parentKeys = append(b.parentKeys, fact.ExpenseKey)
		summary.Processed++
	}

	for partition, b := range batches {
		if err := ValidateBatch(b.facts, b.orders); err != nil {
			return nil, fmt.Errorf("partition %s: %w", partition, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for partition, b := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.facts.MergeExpenses(partition, b.facts)
			if err != nil {
				return fmt.Errorf("merge expenses into %s: %w", partition, err)
			}
			if _, err := p.facts.MergeOrders(partition, b.parentKeys, b.orders); err != nil {
				return fmt.Errorf("merge expense orders into %s: %w", partition, err)
			}
			p.log.Info().
				Str("partition", partition).
				Int("incoming", res.Incoming).
				Int("total", res.Total).
				Msg("partition merged")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for partition, b := range batches {
		summary.Partitions[partition] = len(b.facts)
	}
	summary.Duration = time.Since(start)

	p.log.Info().
		Str("run_id", summary.RunID).
		Int("processed", summary.Processed).
		Int("rejected", len(summary.Rejected)).
		Int("partitions", len(summary.Partitions)).
		Dur("duration", summary.Duration).
		Msg("processing run finished")

	return summary, nil
}

// PartitionDates returns the sorted partition dates touched by a summary.
func (s *ProcessSummary) PartitionDates() []string {
	dates := make([]string, 0, len(s.Partitions))
	for d := range s.Partitions {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

func (p *Processor) flattenOne(id int64) (*ExpenseFact, []ExpenseOrderFact, error) {
	data, err := p.raw.Read(id)
	if err != nil {
		return nil, nil, err
	}

	var doc fudo.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, &MalformedRecordError{
			ID:     fmt.Sprint(id),
			Field:  "document",
			Reason: "invalid JSON: " + err.Error(),
		}
	}

	return Flatten(&doc, p.loc)
}
