// Package config loads the database configuration from YAML with
// SOLARIS_* environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/solarisdb/pkg/core/distance"
)

// Config is the top-level configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Collections CollectionsConfig `yaml:"collections"`
	Performance PerformanceConfig `yaml:"performance"`
}

// DatabaseConfig covers database-wide settings.
type DatabaseConfig struct {
	Name string `yaml:"name"`
	// DataDirectory is where snapshots are written. Empty disables
	// persistence.
	DataDirectory string `yaml:"data_directory"`
	// MaxCollections caps the registry size. Zero means unlimited.
	MaxCollections int `yaml:"max_collections"`
}

// CollectionsConfig carries the defaults applied to new collections when the
// caller does not override them.
type CollectionsConfig struct {
	DefaultDimension      int    `yaml:"default_dimension"`
	DefaultMetric         string `yaml:"default_metric"`
	DefaultM              int    `yaml:"default_m"`
	DefaultEfConstruction int    `yaml:"default_ef_construction"`
}

// PerformanceConfig tunes the search and maintenance machinery.
type PerformanceConfig struct {
	// EfSearch is the default candidate-list width for queries.
	EfSearch int `yaml:"ef_search"`
	// SearchTimeout bounds a single search. Zero means unbounded.
	SearchTimeout time.Duration `yaml:"search_timeout"`
	// ParallelThreshold is the scan size above which flat scans fan out
	// across CPUs.
	ParallelThreshold int `yaml:"parallel_threshold"`
	// OverfetchMultiplier scales k when a filtered search cannot push the
	// filter down into the index as an allow list.
	OverfetchMultiplier int `yaml:"overfetch_multiplier"`
	// BatchSize is the chunk size bulk loaders hand to InsertBatch.
	BatchSize int `yaml:"batch_size"`
	// CompactionThreshold is the tombstone ratio above which a collection
	// rebuilds its index.
	CompactionThreshold float64 `yaml:"compaction_threshold"`
}

// Default returns a working configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Name:           "solaris",
			DataDirectory:  "",
			MaxCollections: 0,
		},
		Collections: CollectionsConfig{
			DefaultDimension:      768,
			DefaultMetric:         string(distance.Euclidean),
			DefaultM:              16,
			DefaultEfConstruction: 200,
		},
		Performance: PerformanceConfig{
			EfSearch:            50,
			SearchTimeout:       0,
			ParallelThreshold:   10000,
			OverfetchMultiplier: 4,
			BatchSize:           256,
			CompactionThreshold: 0.5,
		},
	}
}

// Load reads the YAML file at path with strict parsing, then applies the
// environment overrides. An empty path skips the file and uses defaults plus
// environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
		}
	}

	cfg.FromEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv overlays SOLARIS_* environment variables onto the config.
// Malformed values are ignored rather than fatal; Validate catches anything
// that matters.
func (c *Config) FromEnv() {
	if v := os.Getenv("SOLARIS_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("SOLARIS_DATA_DIRECTORY"); v != "" {
		c.Database.DataDirectory = v
	}
	if v := os.Getenv("SOLARIS_MAX_COLLECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Database.MaxCollections = n
		}
	}
	if v := os.Getenv("SOLARIS_DEFAULT_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Collections.DefaultDimension = n
		}
	}
	if v := os.Getenv("SOLARIS_DEFAULT_METRIC"); v != "" {
		c.Collections.DefaultMetric = v
	}
	if v := os.Getenv("SOLARIS_DEFAULT_M"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Collections.DefaultM = n
		}
	}
	if v := os.Getenv("SOLARIS_DEFAULT_EF_CONSTRUCTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Collections.DefaultEfConstruction = n
		}
	}
	if v := os.Getenv("SOLARIS_EF_SEARCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Performance.EfSearch = n
		}
	}
	if v := os.Getenv("SOLARIS_SEARCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Performance.SearchTimeout = d
		}
	}
	if v := os.Getenv("SOLARIS_OVERFETCH_MULTIPLIER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Performance.OverfetchMultiplier = n
		}
	}
	if v := os.Getenv("SOLARIS_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Performance.BatchSize = n
		}
	}
}

// Validate checks the configuration for values that would break a running
// database.
func (c Config) Validate() error {
	if c.Collections.DefaultDimension <= 0 {
		return fmt.Errorf("default_dimension must be positive, got %d", c.Collections.DefaultDimension)
	}
	if !distance.Metric(c.Collections.DefaultMetric).Valid() {
		return fmt.Errorf("invalid default metric %q", c.Collections.DefaultMetric)
	}
	if c.Collections.DefaultM <= 0 {
		return fmt.Errorf("default_m must be positive, got %d", c.Collections.DefaultM)
	}
	if c.Collections.DefaultEfConstruction < c.Collections.DefaultM {
		return fmt.Errorf("default_ef_construction (%d) cannot be below default_m (%d)",
			c.Collections.DefaultEfConstruction, c.Collections.DefaultM)
	}
	if c.Performance.EfSearch <= 0 {
		return fmt.Errorf("ef_search must be positive, got %d", c.Performance.EfSearch)
	}
	if c.Performance.SearchTimeout < 0 {
		return fmt.Errorf("search_timeout cannot be negative")
	}
	if c.Performance.OverfetchMultiplier < 1 {
		return fmt.Errorf("overfetch_multiplier must be at least 1, got %d", c.Performance.OverfetchMultiplier)
	}
	if c.Performance.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Performance.BatchSize)
	}
	if c.Performance.CompactionThreshold < 0 || c.Performance.CompactionThreshold > 1 {
		return fmt.Errorf("compaction_threshold must be in [0, 1], got %g", c.Performance.CompactionThreshold)
	}
	return nil
}
