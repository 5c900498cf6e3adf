package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/fudodata/expense-pipeline/internal/config"
	"github.com/fudodata/expense-pipeline/internal/extractor"
	"github.com/fudodata/expense-pipeline/internal/fudo"
	"github.com/fudodata/expense-pipeline/internal/gcs"
	"github.com/fudodata/expense-pipeline/internal/ledger"
	"github.com/fudodata/expense-pipeline/internal/logger"
	"github.com/fudodata/expense-pipeline/internal/orchestrator"
	"github.com/fudodata/expense-pipeline/internal/pipeline"
	"github.com/fudodata/expense-pipeline/internal/rawstore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	if err := cfg.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare local directories")
	}

	switch os.Args[1] {
	case "extract":
		runExtract(cfg, log)
	case "process":
		runProcess(cfg, log)
	case "range":
		runRange(cfg, log)
	case "auto":
		runAuto(cfg, log)
	case "continuous":
		runContinuous(cfg, log)
	case "daterange":
		runDateRange(cfg, log)
	case "sync":
		runSync(cfg, log)
	case "summary":
		runSummary(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Fudo Expense Pipeline")
	fmt.Println("\nUsage:")
	fmt.Println("  expenses <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract     Fetch raw expense documents for an ID range")
	fmt.Println("  process     Flatten raw documents into partitioned fact tables")
	fmt.Println("  range       Extract and process an ID range in one run")
	fmt.Println("  auto        Extract and process the next unfetched batch")
	fmt.Println("  continuous  Run auto batches until caught up with the source")
	fmt.Println("  daterange   Fetch expenses by date range into grouped JSON files")
	fmt.Println("  sync        Mirror fact tables and the ledger to cloud storage")
	fmt.Println("  summary     Show partition and ledger statistics")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'expenses <command> -h' for more information on a command.")
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logger.WithContext(ctx, log)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Warn().Str("signal", sig.String()).Msg("Shutting down")
		cancel()
	}()

	return ctx, cancel
}

func openLedger(cfg *config.Config, log zerolog.Logger) *ledger.Ledger {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open extraction ledger")
	}
	return led
}

func openRawStore(cfg *config.Config, log zerolog.Logger) *rawstore.Store {
	store, err := rawstore.New(cfg.RawDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open raw store")
	}
	return store
}

func buildExtractor(cfg *config.Config, led *ledger.Ledger, log zerolog.Logger) *extractor.Extractor {
	client := fudo.NewClient(cfg.APIURL, cfg.AuthURL, cfg.APIKey, cfg.APISecret)
	return extractor.New(client, openRawStore(cfg, log), led, cfg.FailFast, log)
}

func buildProcessor(cfg *config.Config, log zerolog.Logger) *pipeline.Processor {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("Invalid timezone")
	}
	field, err := pipeline.ParsePartitionField(cfg.PartitionField)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid partition field")
	}
	codec, err := pipeline.NewCodec(cfg.TableFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid table format")
	}

	facts := pipeline.NewStore(cfg.FactDir, codec)
	return pipeline.NewProcessor(openRawStore(cfg, log), facts, loc, field, log)
}

func runExtract(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	start := fs.Int64("start", 0, "first expense ID (inclusive)")
	end := fs.Int64("end", 0, "last expense ID (inclusive)")
	rebuild := fs.Bool("rebuild-ledger", false, "rebuild the ledger from the raw store before extracting")
	fs.Parse(os.Args[2:])

	if *start <= 0 || *end <= 0 {
		log.Fatal().Msg("Usage: expenses extract -start N -end M")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	led := openLedger(cfg, log)
	defer led.Close()

	ext := buildExtractor(cfg, led, log)
	if *rebuild {
		if err := ext.InitializeLedgerFromStore(); err != nil {
			log.Fatal().Err(err).Msg("Ledger rebuild failed")
		}
	}

	summary, err := ext.ExtractRange(ctx, *start, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("Extraction failed")
	}
	writeRunMetadata(cfg, log, "extraction", summary.RunID, summary)
	printExtraction(summary)
	if !summary.OK() {
		os.Exit(1)
	}
}

func runProcess(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	start := fs.Int64("start", 0, "first expense ID (inclusive)")
	end := fs.Int64("end", 0, "last expense ID (inclusive)")
	fs.Parse(os.Args[2:])

	if *start <= 0 || *end <= 0 {
		log.Fatal().Msg("Usage: expenses process -start N -end M")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	summary, err := buildProcessor(cfg, log).ProcessRange(ctx, *start, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("Processing failed")
	}
	writeRunMetadata(cfg, log, "processing", summary.RunID, summary)
	printProcessing(summary)
	if !summary.OK() {
		os.Exit(1)
	}
}

func runRange(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("range", flag.ExitOnError)
	start := fs.Int64("start", 0, "first expense ID (inclusive)")
	end := fs.Int64("end", 0, "last expense ID (inclusive)")
	fs.Parse(os.Args[2:])

	if *start <= 0 || *end <= 0 {
		log.Fatal().Msg("Usage: expenses range -start N -end M")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	led := openLedger(cfg, log)
	defer led.Close()

	runner := orchestrator.New(buildExtractor(cfg, led, log), buildProcessor(cfg, log), log)
	report, err := runner.RunRange(ctx, *start, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}
	writeRunMetadata(cfg, log, "run", report.Extraction.RunID, report)
	printReport(report)
	if !report.OK() {
		os.Exit(1)
	}
}

func runAuto(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("auto", flag.ExitOnError)
	batch := fs.Int("batch", cfg.BatchSize, "number of IDs per batch")
	fs.Parse(os.Args[2:])

	ctx, cancel := signalContext(log)
	defer cancel()

	led := openLedger(cfg, log)
	defer led.Close()

	runner := orchestrator.New(buildExtractor(cfg, led, log), buildProcessor(cfg, log), log)
	report, err := runner.RunAuto(ctx, *batch)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}
	writeRunMetadata(cfg, log, "run", report.Extraction.RunID, report)
	printReport(report)
	if !report.OK() {
		os.Exit(1)
	}
}

func runContinuous(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("continuous", flag.ExitOnError)
	batch := fs.Int("batch", cfg.BatchSize, "number of IDs per batch")
	maxBatches := fs.Int("max-batches", 0, "stop after this many batches (0 = until caught up)")
	delay := fs.Duration("delay", 0, "pause between batches")
	fs.Parse(os.Args[2:])

	ctx, cancel := signalContext(log)
	defer cancel()

	led := openLedger(cfg, log)
	defer led.Close()

	runner := orchestrator.New(buildExtractor(cfg, led, log), buildProcessor(cfg, log), log)
	reports, err := runner.RunContinuous(ctx, *batch, *maxBatches, *delay)
	if err != nil {
		log.Fatal().Err(err).Int("completed_batches", len(reports)).Msg("Continuous run failed")
	}

	ok := true
	for _, report := range reports {
		writeRunMetadata(cfg, log, "run", report.Extraction.RunID, report)
		printReport(report)
		ok = ok && report.OK()
	}
	if !ok {
		os.Exit(1)
	}
}

func runDateRange(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("daterange", flag.ExitOnError)
	startDate := fs.String("start-date", "", "first expense date (YYYY-MM-DD, inclusive)")
	endDate := fs.String("end-date", "", "last expense date (YYYY-MM-DD, inclusive)")
	granStr := fs.String("granularity", "month", "output grouping: day, month or year")
	outDir := fs.String("out", "", "output directory (defaults to <raw dir>/by_date)")
	fs.Parse(os.Args[2:])

	gran, err := extractor.ParseGranularity(*granStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid granularity")
	}
	if *outDir == "" {
		*outDir = filepath.Join(cfg.RawDir, "by_date")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	client := fudo.NewClient(cfg.APIURL, cfg.AuthURL, cfg.APIKey, cfg.APISecret)
	ext := extractor.NewDateRange(client, *outDir, cfg.PageSize, cfg.MaxPages, log)

	summary, err := ext.Extract(ctx, *startDate, *endDate, gran)
	if err != nil {
		log.Fatal().Err(err).Msg("Date-range extraction failed")
	}

	fmt.Printf("Fetched %d records into %d partition files under %s\n",
		summary.TotalRecords, len(summary.Files), *outDir)
}

func runSync(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	pullLedger := fs.Bool("pull-ledger", false, "download the remote ledger instead of pushing local state")
	fs.Parse(os.Args[2:])

	if cfg.GCSBucket == "" {
		log.Fatal().Msg("GCS_BUCKET_NAME is not configured")
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	syncer := gcs.NewSyncer(gcs.NewGCSStorageService(), cfg.GCSBucket, log)
	ledgerObject := "logs/extracted_expenses_log.txt"

	if *pullLedger {
		if err := syncer.PullLedger(ctx, cfg.LedgerPath, ledgerObject); err != nil {
			log.Fatal().Err(err).Msg("Ledger pull failed")
		}
		return
	}

	factResult, err := syncer.SyncDir(ctx, cfg.FactDir, "clean")
	if err != nil {
		log.Fatal().Err(err).Msg("Fact table sync failed")
	}
	rawResult, err := syncer.SyncDir(ctx, cfg.RawDir, "raw")
	if err != nil {
		log.Fatal().Err(err).Msg("Raw store sync failed")
	}
	if err := syncer.PushLedger(ctx, cfg.LedgerPath, ledgerObject); err != nil {
		log.Fatal().Err(err).Msg("Ledger push failed")
	}

	fmt.Printf("Synced %d fact files and %d raw files to gs://%s\n",
		len(factResult.Uploaded), len(rawResult.Uploaded), cfg.GCSBucket)
}

func runSummary(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	led := openLedger(cfg, log)
	defer led.Close()

	rawIDs, err := openRawStore(cfg, log).ScanIDs()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to scan raw store")
	}

	codec, err := pipeline.NewCodec(cfg.TableFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid table format")
	}
	facts := pipeline.NewStore(cfg.FactDir, codec)

	partitions, err := facts.ListPartitions(pipeline.TableExpenses)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list partitions")
	}

	fmt.Printf("Raw store: %d documents\n", len(rawIDs))
	fmt.Printf("Ledger: %d IDs checked, highest %d\n", led.Len(), led.MaxCheckedID())
	fmt.Printf("Fact partitions: %d\n", len(partitions))

	var total int
	for _, p := range partitions {
		rows, err := facts.ReadPartition(p)
		if err != nil {
			log.Fatal().Err(err).Str("partition", p).Msg("Failed to read partition")
		}
		fmt.Printf("  date=%s  %d expenses\n", p, len(rows))
		total += len(rows)
	}
	fmt.Printf("Total expense rows: %d\n", total)

	if cfg.GCSBucket != "" {
		ctx, cancel := signalContext(log)
		defer cancel()

		syncer := gcs.NewSyncer(gcs.NewGCSStorageService(), cfg.GCSBucket, log)
		for _, prefix := range []string{"raw/", "clean/"} {
			names, err := syncer.ListRemote(ctx, prefix)
			if err != nil {
				log.Fatal().Err(err).Str("prefix", prefix).Msg("Failed to list remote objects")
			}
			fmt.Printf("Remote %s %d objects\n", prefix, len(names))
		}
	}
}

// writeRunMetadata persists a run summary as JSON next to the ledger.
func writeRunMetadata(cfg *config.Config, log zerolog.Logger, kind, runID string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode run metadata")
		return
	}
	path := filepath.Join(filepath.Dir(cfg.LedgerPath), fmt.Sprintf("%s_metadata_%s.json", kind, runID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Failed to write run metadata")
	}
}

func printExtraction(s *extractor.Summary) {
	fmt.Printf("Extraction %s: IDs %d-%d, fetched %d, skipped %d, not found %d, failed %d\n",
		s.RunID, s.StartID, s.EndID, s.Fetched, s.Skipped, s.NotFound, len(s.Failed))
}

func printProcessing(s *pipeline.ProcessSummary) {
	fmt.Printf("Processing %s: IDs %d-%d, processed %d into %d partitions, rejected %d\n",
		s.RunID, s.StartID, s.EndID, s.Processed, len(s.Partitions), len(s.Rejected))
	for _, r := range s.Rejected {
		fmt.Printf("  rejected %d: %s\n", r.ID, r.Reason)
	}
}

func printReport(r *orchestrator.RunReport) {
	printExtraction(r.Extraction)
	printProcessing(r.Processing)
}
