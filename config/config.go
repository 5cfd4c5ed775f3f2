package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/market/data"
	"github.com/rustyeddy/barsim/strategies"
)

// Config represents a complete backtest setup
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Sizing   SizingConfig   `json:"sizing" yaml:"sizing"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`

	// Workers bounds concurrent runs for compare and optimize. Zero means
	// one per CPU.
	Workers int `json:"workers" yaml:"workers"`
}

// AccountConfig holds the money settings. Values may be written as numbers
// or decimal strings.
type AccountConfig struct {
	InitialCash    decimal.Decimal `json:"initial_cash" yaml:"initial_cash"`
	CommissionRate decimal.Decimal `json:"commission_rate" yaml:"commission_rate"`
}

type SizingConfig struct {
	Mode    string  `json:"mode" yaml:"mode"` // "percent" or "units"
	Percent float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
	Units   float64 `json:"units,omitempty" yaml:"units,omitempty"`
	LotSize float64 `json:"lot_size,omitempty" yaml:"lot_size,omitempty"`
}

type StrategyConfig struct {
	Name   string             `json:"name" yaml:"name"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

type DataConfig struct {
	Source string `json:"source" yaml:"source"` // "csv", "parquet" or "synthetic"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
	Symbol string `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	// Start and End bound the bars used, [start, end).
	Start     string          `json:"start,omitempty" yaml:"start,omitempty"`
	End       string          `json:"end,omitempty" yaml:"end,omitempty"`
	Synthetic SyntheticConfig `json:"synthetic" yaml:"synthetic"`
}

type SyntheticConfig struct {
	Model          string  `json:"model" yaml:"model"`
	Start          string  `json:"start" yaml:"start"`
	Bars           int     `json:"bars" yaml:"bars"`
	Interval       string  `json:"interval" yaml:"interval"` // e.g. "1d", "1h"
	InitialPrice   float64 `json:"initial_price" yaml:"initial_price"`
	Drift          float64 `json:"drift" yaml:"drift"`
	Volatility     float64 `json:"volatility" yaml:"volatility"`
	ReversionSpeed float64 `json:"reversion_speed,omitempty" yaml:"reversion_speed,omitempty"`
	Seed           uint64  `json:"seed" yaml:"seed"`
}

type AnalysisConfig struct {
	// BarsPerYear zero derives it from the bar interval.
	BarsPerYear  float64 `json:"bars_per_year" yaml:"bars_per_year"`
	RiskFreeRate float64 `json:"risk_free_rate" yaml:"risk_free_rate"`
}

type JournalConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite3", "postgres" or "none"
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// Enabled reports whether runs are persisted.
func (j JournalConfig) Enabled() bool {
	d := strings.ToLower(strings.TrimSpace(j.Driver))
	return d != "" && d != "none"
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

type MetricsConfig struct {
	// Addr, when set, serves Prometheus metrics on it (e.g. ":9090").
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LoadFromFile reads YAML, falling back to JSON. Fields missing from the
// file keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := blank()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		cfg = blank()
		if jerr := json.Unmarshal(raw, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// blank is Default without strategy params, so a file naming another
// strategy does not inherit them.
func blank() *Config {
	c := Default()
	c.Strategy.Params = nil
	return c
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		out, err = yaml.Marshal(c)
	default:
		out, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration without touching the filesystem.
func (c *Config) Validate() error {
	if !c.Account.InitialCash.IsPositive() {
		return fmt.Errorf("account.initial_cash must be positive")
	}
	if c.Account.CommissionRate.IsNegative() || c.Account.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("account.commission_rate must be in [0, 1)")
	}
	if _, err := c.Sizing.Build(); err != nil {
		return err
	}
	if _, err := strategies.Lookup(c.Strategy.Name); err != nil {
		return fmt.Errorf("strategy.name: %w", err)
	}
	if _, err := c.Data.Build(); err != nil {
		return err
	}
	if c.Analysis.BarsPerYear < 0 {
		return fmt.Errorf("analysis.bars_per_year must not be negative")
	}
	if c.Journal.Enabled() {
		if _, err := journal.Driver(c.Journal.Driver); err != nil {
			return fmt.Errorf("journal.driver: %w", err)
		}
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn required for driver %s", c.Journal.Driver)
		}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

// Build turns the sizing section into a broker policy.
func (s SizingConfig) Build() (broker.Sizing, error) {
	mode, err := broker.ParseSizingMode(s.Mode)
	if err != nil {
		return broker.Sizing{}, fmt.Errorf("sizing.mode: %w", err)
	}
	out := broker.Sizing{
		Mode:    mode,
		Percent: decimal.NewFromFloat(s.Percent),
		Units:   decimal.NewFromFloat(s.Units),
		LotSize: decimal.NewFromFloat(s.LotSize),
	}
	if err := out.Validate(); err != nil {
		return broker.Sizing{}, err
	}
	return out, nil
}

// Build returns the bar source described by the data section.
func (d DataConfig) Build() (data.Source, error) {
	rng, err := data.ParseRange(d.Start, d.End)
	if err != nil {
		return nil, fmt.Errorf("data: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(d.Source)) {
	case "csv":
		if d.Path == "" {
			return nil, fmt.Errorf("data.path required for csv source")
		}
		return data.CSVSource{Path: d.Path, Symbol: d.Symbol, Range: rng}, nil
	case "parquet":
		if d.Path == "" {
			return nil, fmt.Errorf("data.path required for parquet source")
		}
		return data.ParquetSource{Path: d.Path, Symbol: d.Symbol, Range: rng}, nil
	case "synthetic", "":
		g, err := d.Synthetic.Build()
		if err != nil {
			return nil, err
		}
		if d.Symbol != "" {
			g.Symbol = d.Symbol
		}
		g.Range = rng
		return g, nil
	}
	return nil, fmt.Errorf("data.source must be csv, parquet or synthetic, got %q", d.Source)
}

// Build fills a generator from the section, defaulting unset fields.
func (s SyntheticConfig) Build() (data.Synthetic, error) {
	g := data.DefaultSynthetic()

	model, err := data.ParseModel(s.Model)
	if err != nil {
		return data.Synthetic{}, fmt.Errorf("data.synthetic.model: %w", err)
	}
	g.Model = model

	if s.Start != "" {
		t, err := data.ParseDate(s.Start)
		if err != nil {
			return data.Synthetic{}, fmt.Errorf("data.synthetic.start: %w", err)
		}
		g.Start = t
	}
	if s.Interval != "" {
		d, err := market.ParseInterval(s.Interval)
		if err != nil {
			return data.Synthetic{}, fmt.Errorf("data.synthetic.interval: %w", err)
		}
		g.Interval = d
	}
	if s.Bars != 0 {
		g.Bars = s.Bars
	}
	if s.InitialPrice != 0 {
		g.InitialPrice = s.InitialPrice
	}
	if s.Volatility != 0 {
		g.Volatility = s.Volatility
	}
	if s.ReversionSpeed != 0 {
		g.ReversionSpeed = s.ReversionSpeed
	}
	g.Drift = s.Drift
	g.Seed = s.Seed

	if err := g.Validate(); err != nil {
		return data.Synthetic{}, err
	}
	return g, nil
}

// Engine builds the engine settings. log may be nil.
func (c *Config) Engine(log backtest.Logger) (backtest.Config, error) {
	sizing, err := c.Sizing.Build()
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		InitialCash:    c.Account.InitialCash,
		CommissionRate: c.Account.CommissionRate,
		Sizing:         sizing,
		BarsPerYear:    c.Analysis.BarsPerYear,
		RiskFreeRate:   c.Analysis.RiskFreeRate,
		Logger:         log,
	}, nil
}

// Default returns a configuration that runs SMA crossover on two years of
// synthetic daily bars.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialCash:    decimal.NewFromInt(10000),
			CommissionRate: decimal.RequireFromString("0.001"),
		},
		Sizing: SizingConfig{
			Mode:    string(broker.SizePercent),
			Percent: backtest.DefaultPercent,
			LotSize: 1,
		},
		Strategy: StrategyConfig{
			Name:   "sma",
			Params: map[string]float64{"short_period": 10, "long_period": 30},
		},
		Data: DataConfig{
			Source: "synthetic",
			Synthetic: SyntheticConfig{
				Model:        string(data.ModelGBM),
				Start:        "2020-01-01",
				Bars:         504,
				Interval:     "1d",
				InitialPrice: 100,
				Drift:        0.0005,
				Volatility:   0.02,
				Seed:         42,
			},
		},
		Journal: JournalConfig{
			Driver: "none",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
