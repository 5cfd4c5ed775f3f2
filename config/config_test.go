package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market/data"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.True(t, cfg.Account.InitialCash.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, "sma", cfg.Strategy.Name)
	assert.False(t, cfg.Journal.Enabled())
	assert.NoError(t, cfg.Validate())

	ec, err := cfg.Engine(nil)
	require.NoError(t, err)
	assert.Equal(t, broker.SizePercent, ec.Sizing.Mode)
	assert.True(t, ec.Sizing.Percent.Equal(decimal.NewFromFloat(0.95)), "percent %s", ec.Sizing.Percent)
	assert.NoError(t, ec.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero cash", func(c *Config) { c.Account.InitialCash = decimal.Zero }, "account.initial_cash must be positive"},
		{"commission too high", func(c *Config) { c.Account.CommissionRate = decimal.NewFromInt(1) }, "account.commission_rate"},
		{"bad sizing mode", func(c *Config) { c.Sizing.Mode = "kelly" }, "sizing.mode"},
		{"percent over one", func(c *Config) { c.Sizing.Percent = 1.5 }, "percent must be in (0, 1]"},
		{"unknown strategy", func(c *Config) { c.Strategy.Name = "macd" }, "unknown strategy"},
		{"csv without path", func(c *Config) { c.Data.Source = "csv" }, "data.path required"},
		{"unknown source", func(c *Config) { c.Data.Source = "ftp" }, "data.source"},
		{"bad range", func(c *Config) { c.Data.Start = "2024-02-01"; c.Data.End = "2024-01-01" }, "not after"},
		{"bad interval", func(c *Config) { c.Data.Synthetic.Interval = "fortnight" }, "data.synthetic.interval"},
		{"journal without dsn", func(c *Config) { c.Journal.Driver = "sqlite3" }, "journal.dsn required"},
		{"unknown journal", func(c *Config) { c.Journal = JournalConfig{Driver: "mysql", DSN: "x"} }, "journal.driver"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"negative workers", func(c *Config) { c.Workers = -1 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Account.CommissionRate = decimal.RequireFromString("0.0025")
			cfg.Strategy = StrategyConfig{Name: "rsi", Params: map[string]float64{"rsi_period": 7}}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.True(t, cfg.Account.InitialCash.Equal(loaded.Account.InitialCash))
			assert.True(t, cfg.Account.CommissionRate.Equal(loaded.Account.CommissionRate))
			assert.Equal(t, cfg.Strategy, loaded.Strategy)
			assert.Equal(t, cfg.Sizing, loaded.Sizing)
			assert.Equal(t, cfg.Data, loaded.Data)
		})
	}
}

func TestLoadPartialYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
account:
  initial_cash: 2500.50
strategy:
  name: bollinger
  params:
    period: 15
data:
  source: synthetic
  synthetic:
    model: mean_reverting
    bars: 100
    interval: 1h
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "2500.5", cfg.Account.InitialCash.String())
	assert.Equal(t, "0.001", cfg.Account.CommissionRate.String())
	// defaults for another strategy are not inherited
	assert.Equal(t, map[string]float64{"period": 15}, cfg.Strategy.Params)

	src, err := cfg.Data.Build()
	require.NoError(t, err)
	g, ok := src.(data.Synthetic)
	require.True(t, ok)
	assert.Equal(t, data.ModelMeanReverting, g.Model)
	assert.Equal(t, time.Hour, g.Interval)
	assert.Equal(t, 100, g.Bars)

	ser, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, ser.Len())
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [1, 2"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("account:\n  initial_cash: -5\n"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestDataBuildSources(t *testing.T) {
	src, err := DataConfig{Source: "CSV", Path: "bars.csv", Symbol: "SPY", Start: "2020-01-01"}.Build()
	require.NoError(t, err)
	c, ok := src.(data.CSVSource)
	require.True(t, ok)
	assert.Equal(t, "SPY", c.Symbol)
	assert.False(t, c.Range.From.IsZero())

	src, err = DataConfig{Source: "parquet", Path: "bars.parquet"}.Build()
	require.NoError(t, err)
	assert.IsType(t, data.ParquetSource{}, src)
}
