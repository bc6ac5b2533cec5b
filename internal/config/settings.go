// Package config loads runtime settings from the environment and import
// profiles from YAML or CUE files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/roach88/basicio/internal/ir"
)

// Settings are the process-wide defaults. CLI flags and request parameters
// override them per batch.
type Settings struct {
	DBPath      string `env:"BIO_DB_PATH" envDefault:"bio.db"`
	DatabaseURL string `env:"BIO_DATABASE_URL"` // postgres; wins over DBPath when set

	Workers        int           `env:"BIO_WORKERS" envDefault:"4"`
	LookupTimeout  time.Duration `env:"BIO_LOOKUP_TIMEOUT" envDefault:"5s"`
	PersistTimeout time.Duration `env:"BIO_PERSIST_TIMEOUT" envDefault:"10s"`
	MaxBatchSize   int           `env:"BIO_MAX_BATCH_SIZE" envDefault:"10000"`
	CacheSize      int           `env:"BIO_LOOKUP_CACHE_SIZE" envDefault:"1024"`

	OnMissing   string `env:"BIO_ON_MISSING" envDefault:"fail"`
	OnAmbiguous string `env:"BIO_ON_AMBIGUOUS" envDefault:"fail"`
	Mode        string `env:"BIO_MODE" envDefault:"best_effort"`
	TreeField   string `env:"BIO_TREE_FIELD" envDefault:"parent_id"` // --tree-field "" disables

	HTTPAddr     string `env:"BIO_HTTP_ADDR" envDefault:":8080"`
	MaxBodyBytes int64  `env:"BIO_MAX_BODY_BYTES" envDefault:"33554432"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadEnvFiles loads the .env files that exist, without overriding variables
// already set. It returns how many files were loaded.
func LoadEnvFiles(files ...string) (int, error) {
	loaded := 0
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("load %s: %w", f, err)
		}
		loaded++
	}
	return loaded, nil
}

// LoadSettings parses the environment and validates the result.
func LoadSettings() (Settings, error) {
	s, err := env.ParseAs[Settings]()
	if err != nil {
		return Settings{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and enum values.
func (s Settings) Validate() error {
	if s.Workers < 1 {
		return fmt.Errorf("BIO_WORKERS must be at least 1, got %d", s.Workers)
	}
	if s.LookupTimeout < 0 {
		return fmt.Errorf("BIO_LOOKUP_TIMEOUT must be non-negative, got %s", s.LookupTimeout)
	}
	if s.PersistTimeout < 0 {
		return fmt.Errorf("BIO_PERSIST_TIMEOUT must be non-negative, got %s", s.PersistTimeout)
	}
	if s.MaxBatchSize < 0 {
		return fmt.Errorf("BIO_MAX_BATCH_SIZE must be non-negative, got %d", s.MaxBatchSize)
	}
	if s.CacheSize < 0 {
		return fmt.Errorf("BIO_LOOKUP_CACHE_SIZE must be non-negative, got %d", s.CacheSize)
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("BIO_MAX_BODY_BYTES must be positive, got %d", s.MaxBodyBytes)
	}
	if s.DatabaseURL == "" && s.DBPath == "" {
		return fmt.Errorf("one of BIO_DB_PATH or BIO_DATABASE_URL is required")
	}
	cfg := s.BatchConfig()
	if !cfg.OnMissing.Valid() {
		return fmt.Errorf("BIO_ON_MISSING must be 'fail' or 'skip', got '%s'", s.OnMissing)
	}
	if !cfg.OnAmbiguous.Valid() {
		return fmt.Errorf("BIO_ON_AMBIGUOUS must be 'fail' or 'skip', got '%s'", s.OnAmbiguous)
	}
	if !cfg.Mode.Valid() {
		return fmt.Errorf("BIO_MODE must be 'atomic' or 'best_effort', got '%s'", s.Mode)
	}
	return nil
}

// BatchConfig returns the default policy matrix.
func (s Settings) BatchConfig() ir.BatchConfig {
	return ir.BatchConfig{
		OnMissing:   ir.Policy(s.OnMissing),
		OnAmbiguous: ir.Policy(s.OnAmbiguous),
		Mode:        ir.Mode(s.Mode),
	}
}
