// Package config loads the turtle YAML configuration and applies environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for turtle.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Gather   Gather   `yaml:"gather"`
	Backtest Backtest `yaml:"backtest"`
	Report   Report   `yaml:"report"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"` // trading API, used for the market calendar
	DataURL   string `yaml:"data_url"`
}

// Gather controls daily bar collection.
type Gather struct {
	StartDate       string   `yaml:"start_date"`
	EndDate         string   `yaml:"end_date"`
	Symbols         []string `yaml:"symbols"`
	SymbolsFile     string   `yaml:"symbols_file"`
	BatchSize       int      `yaml:"batch_size"`
	MaxWorkers      int      `yaml:"max_workers"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
	FeedFile        string   `yaml:"feed_file"`
	FilterFile      string   `yaml:"filter_file"`
}

// Backtest holds the walk-forward run parameters.
type Backtest struct {
	Market         string  `yaml:"market"`
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	InitialCapital float64 `yaml:"initial_capital"`
	RiskFactor     float64 `yaml:"risk_factor"`
	MinVolume      float64 `yaml:"min_volume"`
	EntryMin       int     `yaml:"entry_min"`
	EntryMax       int     `yaml:"entry_max"`
	ExitMin        int     `yaml:"exit_min"`
	ExitMax        int     `yaml:"exit_max"`
	Workers        int     `yaml:"workers"`
}

// Report configures the JSON-lines report sink.
type Report struct {
	Enabled     bool           `yaml:"enabled"`
	Host        string         `yaml:"host"`
	IndexPrefix string         `yaml:"index_prefix"`
	Ports       map[string]int `yaml:"ports"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Defaults fills zero-valued fields with the standard run: 10,000 capital,
// 2% risk, 1,000,000 minimum volume, entry windows 10..20 and exit windows
// 2..10 on the Brazilian market.
func (b *Backtest) Defaults() {
	if b.Market == "" {
		b.Market = "br"
	}
	if b.InitialCapital == 0 {
		b.InitialCapital = 10000
	}
	if b.RiskFactor == 0 {
		b.RiskFactor = 0.02
	}
	if b.MinVolume == 0 {
		b.MinVolume = 1_000_000
	}
	if b.EntryMin == 0 {
		b.EntryMin = 10
	}
	if b.EntryMax == 0 {
		b.EntryMax = 20
	}
	if b.ExitMin == 0 {
		b.ExitMin = 2
	}
	if b.ExitMax == 0 {
		b.ExitMax = 10
	}
}

// Range parses StartDate and EndDate (YYYY-MM-DD).
func (b *Backtest) Range() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, b.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("backtest start_date: %w", err)
	}
	end, err = time.Parse(time.DateOnly, b.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("backtest end_date: %w", err)
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("backtest end_date %s before start_date %s", b.EndDate, b.StartDate)
	}
	return start, end, nil
}

// Defaults fills the report host, index prefix and per-report ports used by
// the report collector.
func (r *Report) Defaults() {
	if r.Host == "" {
		r.Host = "localhost"
	}
	if r.IndexPrefix == "" {
		r.IndexPrefix = "turtle"
	}
	defaults := map[string]int{
		"aggregated": 5000,
		"trade":      5000,
		"stock":      5001,
		"operations": 5002,
		"balance":    5003,
	}
	if r.Ports == nil {
		r.Ports = make(map[string]int, len(defaults))
	}
	for name, port := range defaults {
		if _, ok := r.Ports[name]; !ok {
			r.Ports[name] = port
		}
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.Backtest.Defaults()
	cfg.Report.Defaults()

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	// Canonical Alpaca SDK names win over the ALPACA_* ones.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("TURTLE_REPORT_HOST"); v != "" {
		cfg.Report.Host = v
	}
	if v := os.Getenv("TURTLE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backtest.Workers = n
		}
	}
}
