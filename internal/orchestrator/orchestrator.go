// Package orchestrator chains extraction and processing into complete runs.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fudodata/expense-pipeline/internal/extractor"
	"github.com/fudodata/expense-pipeline/internal/pipeline"
)

// RangeExtractor is the slice of the extractor the orchestrator drives.
type RangeExtractor interface {
	ExtractRange(ctx context.Context, startID, endID int64) (*extractor.Summary, error)
	NextRange(batchSize int) (int64, int64)
}

// RangeProcessor is the slice of the processor the orchestrator drives.
type RangeProcessor interface {
	ProcessRange(ctx context.Context, startID, endID int64) (*pipeline.ProcessSummary, error)
}

// Runner extracts a range and immediately processes it.
type Runner struct {
	extractor RangeExtractor
	processor RangeProcessor
	log       zerolog.Logger
}

// RunReport pairs the two phase summaries of one run.
type RunReport struct {
	Extraction *extractor.Summary       `json:"extraction"`
	Processing *pipeline.ProcessSummary `json:"processing"`
}

// OK reports whether both phases finished without permanent failures.
func (r *RunReport) OK() bool {
	return r.Extraction.OK() && r.Processing.OK()
}

// New creates a Runner.
func New(ext RangeExtractor, proc RangeProcessor, log zerolog.Logger) *Runner {
	return &Runner{extractor: ext, processor: proc, log: log}
}

// RunRange extracts the inclusive ID interval and processes whatever of it
// now sits in the raw store. Extraction failures on individual IDs do not
// block processing of the IDs that succeeded.
func (r *Runner) RunRange(ctx context.Context, startID, endID int64) (*RunReport, error) {
	ext, err := r.extractor.ExtractRange(ctx, startID, endID)
	if err != nil {
		return nil, err
	}

	proc, err := r.processor.ProcessRange(ctx, startID, endID)
	if err != nil {
		return nil, err
	}

	return &RunReport{Extraction: ext, Processing: proc}, nil
}

// RunAuto picks the next unfetched batch from the ledger and runs it.
func (r *Runner) RunAuto(ctx context.Context, batchSize int) (*RunReport, error) {
	start, end := r.extractor.NextRange(batchSize)
	r.log.Info().Int64("start_id", start).Int64("end_id", end).Msg("auto-selected batch")
	return r.RunRange(ctx, start, end)
}

// RunContinuous runs auto batches back to back until a batch fetches
// nothing new, maxBatches is reached (0 means unbounded), or the context is
// cancelled. A batch that fetched nothing means the frontier of the source
// ID space has been reached.
func (r *Runner) RunContinuous(ctx context.Context, batchSize, maxBatches int, delay time.Duration) ([]*RunReport, error) {
	var reports []*RunReport

	for batch := 1; maxBatches == 0 || batch <= maxBatches; batch++ {
		report, err := r.RunAuto(ctx, batchSize)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)

		if report.Extraction.Fetched == 0 {
			r.log.Info().Int("batches", batch).Msg("caught up with source, stopping")
			break
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return reports, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return reports, nil
}
