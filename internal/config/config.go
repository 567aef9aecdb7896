// Package config loads tracer-ingest settings.
//
// Precedence, highest first:
//  1. Environment variables (DATABASE_URL, INGESTION_BATCH_SIZE, API_PORT, ...)
//  2. The optional YAML file passed to New
//  3. Built-in defaults
//
// Environment variables map to keys by splitting on the first underscore:
//
//	DATABASE_URL              -> database.url
//	INGESTION_PARSER_WORKERS  -> ingestion.parser_workers
//	LOG_LEVEL                 -> log.level
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

const maxConfigFileSize = 1024 * 1024

type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Ingestion IngestionConfig `koanf:"ingestion"`
	API       APIConfig       `koanf:"api"`
	Log       LogConfig       `koanf:"log"`
}

type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	URL    string `koanf:"url"`
	// Name is the MongoDB database; Postgres takes it from the URL.
	Name string `koanf:"name"`
}

type RetrievalConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type IngestionConfig struct {
	ParserWorkers        int `koanf:"parser_workers"`
	DBWorkersPerCategory int `koanf:"db_workers_per_category"`
	ResultsChannelSize   int `koanf:"results_channel_size"`
	BatchSize            int `koanf:"batch_size"`
	MaxErrorsPerArchive  int `koanf:"max_errors_per_archive"`
}

type APIConfig struct {
	Port      int           `koanf:"port"`
	RateLimit float64       `koanf:"rate_limit"`
	RateBurst int           `koanf:"rate_burst"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

var defaults = []byte(`
database:
  driver: postgres
  name: tracer
retrieval:
  base_url: http://tracer.sos.colorado.gov/PublicSite/Docs/BulkDataDownloads
  timeout: 5m
ingestion:
  parser_workers: 3
  db_workers_per_category: 2
  results_channel_size: 50000
  batch_size: 5000
  max_errors_per_archive: 100
api:
  port: 8080
  rate_limit: 20
  rate_burst: 40
  cache_ttl: 5m
log:
  level: info
  format: json
`)

var sections = map[string]bool{
	"database":  true,
	"retrieval": true,
	"ingestion": true,
	"api":       true,
	"log":       true,
}

// New loads defaults, then the YAML file at path when path is not empty, then
// the environment.
func New(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name. Variables outside the
// known sections are ignored.
func envKey(s string) string {
	parts := strings.SplitN(strings.ToLower(s), "_", 2)
	if len(parts) != 2 || !sections[parts[0]] {
		return ""
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
	case DriverMongo:
		if c.Database.Name == "" {
			errs = append(errs, errors.New("database.name is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverMongo, c.Database.Driver))
	}

	if c.Retrieval.BaseURL == "" {
		errs = append(errs, errors.New("retrieval.base_url is required"))
	}
	if c.Retrieval.Timeout <= 0 {
		errs = append(errs, errors.New("retrieval.timeout must be positive"))
	}

	positive := map[string]int{
		"ingestion.parser_workers":          c.Ingestion.ParserWorkers,
		"ingestion.db_workers_per_category": c.Ingestion.DBWorkersPerCategory,
		"ingestion.results_channel_size":    c.Ingestion.ResultsChannelSize,
		"ingestion.batch_size":              c.Ingestion.BatchSize,
		"ingestion.max_errors_per_archive":  c.Ingestion.MaxErrorsPerArchive,
		"api.port":                          c.API.Port,
		"api.rate_burst":                    c.API.RateBurst,
	}
	for key, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, v))
		}
	}
	if c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", c.API.Port))
	}
	if c.API.RateLimit <= 0 {
		errs = append(errs, errors.New("api.rate_limit must be positive"))
	}

	return errors.Join(errs...)
}

// RequireDatabaseURL reports a missing database URL for commands that need a
// store.
func (c *Config) RequireDatabaseURL() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	return nil
}
