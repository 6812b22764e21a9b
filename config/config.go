// Package config loads the engine configuration. Settings are layered:
// compiled defaults, then an optional TOML file, then command-line
// flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// SweepConfig controls the background expiration sweep.
type SweepConfig struct {
	Enabled bool `toml:"enabled"`
	// Interval between sweeps, in time.ParseDuration syntax ("24h").
	Interval string `toml:"interval"`
}

// Config is the full engine configuration.
type Config struct {
	Addr     string      `toml:"addr"`
	LogLevel string      `toml:"log_level"`
	Store    StoreConfig `toml:"store"`
	Sweep    SweepConfig `toml:"sweep"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./data/points.db",
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Interval: "24h",
		},
	}
}

// Load builds the effective configuration from defaults, the TOML file
// named by -config (if any), and the remaining flags.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("points-ledger", flag.ContinueOnError)
	var (
		file     = fs.String("config", "", "path to TOML config file")
		addr     = fs.String("addr", "", "listen address")
		driver   = fs.String("store", "", "store driver: sqlite, postgres or memory")
		path     = fs.String("sqlite-path", "", "SQLite database path")
		dsn      = fs.String("postgres-dsn", "", "PostgreSQL connection string")
		logLevel = fs.String("log-level", "", "log level: debug, info, warn or error")
		interval = fs.String("sweep-interval", "", "time between expiration sweeps")
		noSweep  = fs.Bool("no-sweep", false, "disable the background expiration sweep")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *file != "" {
		if _, err := toml.DecodeFile(*file, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if *addr != "" {
		cfg.Addr = *addr
	}
	if *driver != "" {
		cfg.Store.Driver = *driver
	}
	if *path != "" {
		cfg.Store.SQLitePath = *path
	}
	if *dsn != "" {
		cfg.Store.PostgresDSN = *dsn
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *interval != "" {
		cfg.Sweep.Interval = *interval
	}
	if *noSweep {
		cfg.Sweep.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions before any
// component starts.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return errors.New("postgres driver requires store.postgres_dsn")
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return errors.New("sqlite driver requires store.sqlite_path")
	}
	if d, err := c.SweepInterval(); err != nil {
		return fmt.Errorf("invalid sweep interval %q: %w", c.Sweep.Interval, err)
	} else if d <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %q", c.Sweep.Interval)
	}
	return nil
}

// SweepInterval parses the configured time between sweeps.
func (c Config) SweepInterval() (time.Duration, error) {
	return time.ParseDuration(c.Sweep.Interval)
}
