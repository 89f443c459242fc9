package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solaris.yaml")
	content := `
database:
  name: testdb
  data_directory: /tmp/solaris
collections:
  default_metric: cosine
  default_m: 32
performance:
  search_timeout: 250ms
  overfetch_multiplier: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Name != "testdb" || cfg.Database.DataDirectory != "/tmp/solaris" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Collections.DefaultMetric != "cosine" || cfg.Collections.DefaultM != 32 {
		t.Errorf("collections = %+v", cfg.Collections)
	}
	// Unset fields keep their defaults.
	if cfg.Collections.DefaultEfConstruction != 200 {
		t.Errorf("default_ef_construction = %d, want 200", cfg.Collections.DefaultEfConstruction)
	}
	if cfg.Performance.SearchTimeout != 250*time.Millisecond {
		t.Errorf("search_timeout = %v", cfg.Performance.SearchTimeout)
	}
	if cfg.Performance.OverfetchMultiplier != 8 {
		t.Errorf("overfetch_multiplier = %d", cfg.Performance.OverfetchMultiplier)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solaris.yaml")
	if err := os.WriteFile(path, []byte("nonsense_key: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOLARIS_DEFAULT_METRIC", "dotproduct")
	t.Setenv("SOLARIS_EF_SEARCH", "123")
	t.Setenv("SOLARIS_SEARCH_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Collections.DefaultMetric != "dotproduct" {
		t.Errorf("metric = %q", cfg.Collections.DefaultMetric)
	}
	if cfg.Performance.EfSearch != 123 {
		t.Errorf("ef_search = %d", cfg.Performance.EfSearch)
	}
	if cfg.Performance.SearchTimeout != 2*time.Second {
		t.Errorf("search_timeout = %v", cfg.Performance.SearchTimeout)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimension", func(c *Config) { c.Collections.DefaultDimension = 0 }},
		{"bad metric", func(c *Config) { c.Collections.DefaultMetric = "hamming" }},
		{"zero m", func(c *Config) { c.Collections.DefaultM = 0 }},
		{"efc below m", func(c *Config) { c.Collections.DefaultEfConstruction = 4 }},
		{"negative timeout", func(c *Config) { c.Performance.SearchTimeout = -time.Second }},
		{"zero overfetch", func(c *Config) { c.Performance.OverfetchMultiplier = 0 }},
		{"zero batch", func(c *Config) { c.Performance.BatchSize = 0 }},
		{"compaction above one", func(c *Config) { c.Performance.CompactionThreshold = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("invalid config accepted")
			}
		})
	}
}
