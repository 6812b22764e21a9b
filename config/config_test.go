package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, "sqlite")
	}
	if cfg.Store.SQLitePath != "./data/points.db" {
		t.Errorf("Store.SQLitePath = %q, want %q", cfg.Store.SQLitePath, "./data/points.db")
	}
	if !cfg.Sweep.Enabled {
		t.Error("Sweep.Enabled should be true by default")
	}
	if cfg.Sweep.Interval != "24h" {
		t.Errorf("Sweep.Interval = %q, want %q", cfg.Sweep.Interval, "24h")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad_FileThenFlags(t *testing.T) {
	file := filepath.Join(t.TempDir(), "points.toml")
	content := `
addr = ":9000"
log_level = "debug"

[store]
driver = "postgres"
postgres_dsn = "postgres://localhost/points"

[sweep]
enabled = true
interval = "1h"
`
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	// Flags override the file; untouched settings keep the file values.
	cfg, err := Load([]string{"-config", file, "-addr", ":7000", "-sweep-interval", "30m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want flag override %q", cfg.Addr, ":7000")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want file value %q", cfg.LogLevel, "debug")
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want file value %q", cfg.Store.Driver, "postgres")
	}
	if cfg.Sweep.Interval != "30m" {
		t.Errorf("Sweep.Interval = %q, want flag override %q", cfg.Sweep.Interval, "30m")
	}

	d, err := cfg.SweepInterval()
	if err != nil {
		t.Fatalf("sweep interval: %v", err)
	}
	if d != 30*time.Minute {
		t.Errorf("SweepInterval = %v, want %v", d, 30*time.Minute)
	}
}

func TestLoad_NoSweepFlag(t *testing.T) {
	cfg, err := Load([]string{"-no-sweep"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sweep.Enabled {
		t.Error("Sweep.Enabled should be false with -no-sweep")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }},
		{"unparseable interval", func(c *Config) { c.Sweep.Interval = "daily" }},
		{"zero interval", func(c *Config) { c.Sweep.Interval = "0s" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
