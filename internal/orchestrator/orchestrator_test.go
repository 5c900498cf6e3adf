package orchestrator

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fudodata/expense-pipeline/internal/extractor"
	"github.com/fudodata/expense-pipeline/internal/logger"
	"github.com/fudodata/expense-pipeline/internal/pipeline"
)

type fakeExtractor struct {
	summaries []*extractor.Summary
	calls     int
	next      int64
	err       error
}

func (f *fakeExtractor) ExtractRange(_ context.Context, startID, endID int64) (*extractor.Summary, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := f.summaries[f.calls]
	f.calls++
	s.StartID = startID
	s.EndID = endID
	return s, nil
}

func (f *fakeExtractor) NextRange(batchSize int) (int64, int64) {
	start := f.next
	if start == 0 {
		start = 1
	}
	end := start + int64(batchSize) - 1
	f.next = end + 1
	return start, end
}

type fakeProcessor struct {
	calls  int
	ranges [][2]int64
	err    error
}

func (f *fakeProcessor) ProcessRange(_ context.Context, startID, endID int64) (*pipeline.ProcessSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.calls++
	f.ranges = append(f.ranges, [2]int64{startID, endID})
	return &pipeline.ProcessSummary{StartID: startID, EndID: endID}, nil
}

func testRunner(ext *fakeExtractor, proc *fakeProcessor) *Runner {
	return New(ext, proc, logger.NewWithWriter(io.Discard))
}

func TestRunRangeChainsPhases(t *testing.T) {
	ext := &fakeExtractor{summaries: []*extractor.Summary{{Fetched: 3}}}
	proc := &fakeProcessor{}

	report, err := testRunner(ext, proc).RunRange(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("RunRange: %v", err)
	}
	if !report.OK() {
		t.Error("report should be OK")
	}
	if proc.calls != 1 || proc.ranges[0] != [2]int64{1, 5} {
		t.Errorf("processor ranges = %v", proc.ranges)
	}
}

func TestRunRangeProcessesDespiteFetchFailures(t *testing.T) {
	ext := &fakeExtractor{summaries: []*extractor.Summary{{Fetched: 2, Failed: []int64{4}}}}
	proc := &fakeProcessor{}

	report, err := testRunner(ext, proc).RunRange(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("RunRange: %v", err)
	}
	if report.OK() {
		t.Error("report should not be OK with failed IDs")
	}
	if proc.calls != 1 {
		t.Errorf("processor calls = %d, want 1", proc.calls)
	}
}

func TestRunRangeStopsOnExtractError(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("auth expired")}
	proc := &fakeProcessor{}

	if _, err := testRunner(ext, proc).RunRange(context.Background(), 1, 5); err == nil {
		t.Fatal("expected error")
	}
	if proc.calls != 0 {
		t.Error("processor should not run after extraction error")
	}
}

func TestRunAutoUsesLedgerFrontier(t *testing.T) {
	ext := &fakeExtractor{
		summaries: []*extractor.Summary{{Fetched: 5}},
		next:      101,
	}
	proc := &fakeProcessor{}

	report, err := testRunner(ext, proc).RunAuto(context.Background(), 50)
	if err != nil {
		t.Fatalf("RunAuto: %v", err)
	}
	if report.Extraction.StartID != 101 || report.Extraction.EndID != 150 {
		t.Errorf("range = %d-%d, want 101-150", report.Extraction.StartID, report.Extraction.EndID)
	}
}

func TestRunContinuousStopsWhenCaughtUp(t *testing.T) {
	ext := &fakeExtractor{summaries: []*extractor.Summary{
		{Fetched: 10},
		{Fetched: 4},
		{Fetched: 0, NotFound: 10},
		{Fetched: 99}, // must never run
	}}
	proc := &fakeProcessor{}

	reports, err := testRunner(ext, proc).RunContinuous(context.Background(), 10, 0, 0)
	if err != nil {
		t.Fatalf("RunContinuous: %v", err)
	}
	if len(reports) != 3 {
		t.Errorf("len(reports) = %d, want 3", len(reports))
	}
}

func TestRunContinuousHonorsMaxBatches(t *testing.T) {
	ext := &fakeExtractor{summaries: []*extractor.Summary{
		{Fetched: 10}, {Fetched: 10}, {Fetched: 10},
	}}
	proc := &fakeProcessor{}

	reports, err := testRunner(ext, proc).RunContinuous(context.Background(), 10, 2, 0)
	if err != nil {
		t.Fatalf("RunContinuous: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("len(reports) = %d, want 2", len(reports))
	}
}
