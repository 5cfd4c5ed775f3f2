package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/config"
	"github.com/rustyeddy/barsim/internal/logging"
	"github.com/rustyeddy/barsim/internal/telemetry"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/service"
	"github.com/rustyeddy/barsim/strategies"
)

// app is the state shared by every subcommand of one invocation.
type app struct {
	cfgFile     string
	logLevel    string
	logJSON     bool
	metricsAddr string
	dbDriver    string
	dbDSN       string

	cfg     *config.Config
	zl      zerolog.Logger
	metrics *telemetry.Metrics
	store   *journal.Store
	stop    func()
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "barsim",
		Short: "A bar-by-bar strategy backtester",
		Long: `Barsim replays OHLCV bars through a trading strategy and a simulated
broker, then reports return, risk and trade statistics.

It provides tools for:
  - Backtesting a strategy on CSV, Parquet or synthetic bars
  - Comparing strategies on the same data
  - Grid-searching strategy parameters
  - Journaling runs to SQLite or PostgreSQL
  - Generating reproducible synthetic data`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML or JSON)")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.logJSON, "log-json", false, "log as JSON lines")
	pf.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.StringVar(&a.dbDriver, "db-driver", "", "journal driver: sqlite3, postgres or none")
	pf.StringVar(&a.dbDSN, "db", "", "journal DSN (SQLite path or PostgreSQL URL)")

	root.AddCommand(
		newBacktestCmd(a),
		newCompareCmd(a),
		newOptimizeCmd(a),
		newRunsCmd(a),
		newGenerateCmd(a),
		newStrategiesCmd(),
		newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if a.cfgFile != "" {
		loaded, err := config.LoadFromFile(a.cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = a.logJSON
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = a.metricsAddr
	}
	if flags.Changed("db") {
		cfg.Journal.DSN = a.dbDSN
		if !flags.Changed("db-driver") && !cfg.Journal.Enabled() {
			cfg.Journal.Driver = "sqlite3"
		}
	}
	if flags.Changed("db-driver") {
		cfg.Journal.Driver = a.dbDriver
	}
	a.cfg = cfg

	zl, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Out: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	a.zl = zl

	a.metrics = telemetry.New()
	if addr := cfg.Metrics.Addr; addr != "" {
		ctx, cancel := context.WithCancel(cmd.Context())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := a.metrics.Serve(ctx, addr); err != nil {
				a.zl.Error().Err(err).Str("addr", addr).Msg("metrics listener")
			}
		}()
		a.stop = func() { cancel(); <-done }
		a.zl.Info().Str("addr", addr).Msg("serving metrics")
	}
	return nil
}

func (a *app) teardown() error {
	if a.stop != nil {
		a.stop()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *app) logger() backtest.Logger {
	return logging.Wrap(a.zl)
}

// openJournal opens the configured store once. It returns nil when journaling
// is off.
func (a *app) openJournal(ctx context.Context) (*journal.Store, error) {
	if a.store != nil || !a.cfg.Journal.Enabled() {
		return a.store, nil
	}
	if a.cfg.Journal.DSN == "" {
		return nil, fmt.Errorf("journal dsn required for driver %s (use --db)", a.cfg.Journal.Driver)
	}
	s, err := journal.Open(ctx, a.cfg.Journal.Driver, a.cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// newService builds a service over the loaded config, journaling when enabled.
func (a *app) newService(ctx context.Context) (*service.Service, error) {
	ec, err := a.cfg.Engine(a.logger())
	if err != nil {
		return nil, err
	}
	opts := []service.Option{service.WithMetrics(a.metrics), service.WithWorkers(a.cfg.Workers)}
	store, err := a.openJournal(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		opts = append(opts, service.WithJournal(store))
	}
	return service.New(ec, opts...), nil
}

// parseParams turns key=value flag pairs into strategy params.
func parseParams(kv map[string]string) (strategies.Params, error) {
	if len(kv) == 0 {
		return nil, nil
	}
	p := strategies.Params{}
	for k, v := range kv {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", k, err)
		}
		p[strings.TrimSpace(k)] = f
	}
	return p, nil
}
