// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults mirror the layout the pipeline has always used: raw JSON documents
// next to the ledger, partitioned fact tables under a separate root.
const (
	DefaultAPIURL  = "https://api.fu.do/v1alpha1"
	DefaultAuthURL = "https://auth.fu.do/api"

	DefaultRawDir     = "raw"
	DefaultFactDir    = "clean"
	DefaultLedgerPath = "logs/extracted_expenses_log.txt"

	DefaultTimezone  = "America/Argentina/Buenos_Aires"
	DefaultPageSize  = 500
	DefaultBatchSize = 10
)

// Config holds application configuration.
type Config struct {
	APIURL    string
	AuthURL   string
	APIKey    string
	APISecret string

	RawDir     string // raw JSON document store
	FactDir    string // partitioned fact table root
	LedgerPath string // append-only extraction ledger

	Timezone       string // target timezone for created date/time keys
	PartitionField string // "created" or "expense"
	TableFormat    string // "csv" or "parquet"

	PageSize  int // page size for date-range extraction
	MaxPages  int // 0 = unlimited
	BatchSize int // default batch size for auto mode
	FailFast  bool

	GCSBucket string // optional; empty disables cloud sync
	LogLevel  string
}

// Load reads configuration from environment variables.
// A .env file is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:         getEnv("FUDO_API_URL", DefaultAPIURL),
		AuthURL:        getEnv("FUDO_AUTH_URL", DefaultAuthURL),
		APIKey:         getEnv("FUDO_API_KEY", ""),
		APISecret:      getEnv("FUDO_API_SECRET", ""),
		RawDir:         getEnv("EXPENSE_RAW_DIR", DefaultRawDir),
		FactDir:        getEnv("EXPENSE_FACT_DIR", DefaultFactDir),
		LedgerPath:     getEnv("EXPENSE_LEDGER_PATH", DefaultLedgerPath),
		Timezone:       getEnv("EXPENSE_TIMEZONE", DefaultTimezone),
		PartitionField: getEnv("EXPENSE_PARTITION_FIELD", "created"),
		TableFormat:    getEnv("EXPENSE_TABLE_FORMAT", "csv"),
		PageSize:       getEnvAsInt("EXPENSE_PAGE_SIZE", DefaultPageSize),
		MaxPages:       getEnvAsInt("EXPENSE_MAX_PAGES", 0),
		BatchSize:      getEnvAsInt("EXPENSE_BATCH_SIZE", DefaultBatchSize),
		FailFast:       getEnvAsBool("EXPENSE_FAIL_FAST", false),
		GCSBucket:      getEnv("GCS_BUCKET_NAME", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.PartitionField {
	case "created", "expense":
	default:
		return fmt.Errorf("invalid EXPENSE_PARTITION_FIELD %q: want \"created\" or \"expense\"", c.PartitionField)
	}

	switch c.TableFormat {
	case "csv", "parquet":
	default:
		return fmt.Errorf("invalid EXPENSE_TABLE_FORMAT %q: want \"csv\" or \"parquet\"", c.TableFormat)
	}

	if c.PageSize <= 0 {
		return fmt.Errorf("invalid EXPENSE_PAGE_SIZE %d: must be positive", c.PageSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid EXPENSE_BATCH_SIZE %d: must be positive", c.BatchSize)
	}

	return nil
}

// EnsureDirs creates the local store directories and resolves them to
// absolute paths.
func (c *Config) EnsureDirs() error {
	for _, p := range []*string{&c.RawDir, &c.FactDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", *p, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", abs, err)
		}
		*p = abs
	}

	absLedger, err := filepath.Abs(c.LedgerPath)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", c.LedgerPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(absLedger), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	c.LedgerPath = absLedger

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
