package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/internal/id"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/service"
)

type backtestFlags struct {
	data       dataFlags
	strategy   string
	params     map[string]string
	cash       string
	commission string
	trades     bool
	asJSON     bool
	orgPath    string
	tradesCSV  string
	equityCSV  string
}

func newBacktestCmd(a *app) *cobra.Command {
	var bf backtestFlags
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy over a bar series",
		Long: `Backtest replays bars through a strategy. A decision made on one bar
fills at the next bar's open; an open position is closed at the last close.

Examples:
  barsim backtest -s sma -p short_period=10 -p long_period=30
  barsim backtest --csv data/spy.csv -s rsi --start 2022-01-01 --trades
  barsim backtest -c run.yaml --db runs.sqlite --org report.org`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, a, &bf)
		},
	}
	bf.data.add(cmd)
	f := cmd.Flags()
	f.StringVarP(&bf.strategy, "strategy", "s", "", "strategy name (see 'barsim strategies')")
	f.StringToStringVarP(&bf.params, "param", "p", nil, "strategy parameter as key=value (repeatable)")
	f.StringVar(&bf.cash, "cash", "", "initial cash")
	f.StringVar(&bf.commission, "commission", "", "commission rate per fill (0.001 = 0.1%)")
	f.BoolVar(&bf.trades, "trades", false, "print the trade log")
	f.BoolVar(&bf.asJSON, "json", false, "print the summary as JSON")
	f.StringVar(&bf.orgPath, "org", "", "write an Org-mode report to this file")
	f.StringVar(&bf.tradesCSV, "trades-csv", "", "write the trade log as CSV to this file")
	f.StringVar(&bf.equityCSV, "equity-csv", "", "write the equity curve as CSV to this file")
	return cmd
}

// applyAccount overrides the account section from flags.
func applyAccount(a *app, cash, commission string) error {
	if cash != "" {
		d, err := decimal.NewFromString(cash)
		if err != nil {
			return fmt.Errorf("--cash: %w", err)
		}
		a.cfg.Account.InitialCash = d
	}
	if commission != "" {
		d, err := decimal.NewFromString(commission)
		if err != nil {
			return fmt.Errorf("--commission: %w", err)
		}
		a.cfg.Account.CommissionRate = d
	}
	return nil
}

func runBacktest(cmd *cobra.Command, a *app, bf *backtestFlags) error {
	ctx := cmd.Context()
	if err := applyAccount(a, bf.cash, bf.commission); err != nil {
		return err
	}

	name := a.cfg.Strategy.Name
	params := a.cfg.Strategy.Params
	if bf.strategy != "" {
		name = bf.strategy
		params = nil
	}
	if len(bf.params) > 0 {
		p, err := parseParams(bf.params)
		if err != nil {
			return err
		}
		params = p
	}

	src, err := bf.data.source(cmd, a)
	if err != nil {
		return err
	}
	svc, err := a.newService(ctx)
	if err != nil {
		return err
	}

	rep, err := svc.RunBacktest(ctx, service.Request{Source: src, Strategy: name, Params: params})
	if err != nil {
		if rep == nil {
			return fmt.Errorf("backtest failed: %w", err)
		}
		a.zl.Error().Err(err).Msg("run finished but was not journaled")
	}

	out := cmd.OutOrStdout()
	if bf.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		printReport(out, rep)
		if bf.trades {
			if err := backtest.PrintTrades(out, rep.Result); err != nil {
				return err
			}
		}
	}

	return exportRun(rep, bf.orgPath, bf.tradesCSV, bf.equityCSV)
}

func printReport(w io.Writer, rep *service.Report) {
	backtest.PrintResult(w, rep.Result)
	fmt.Fprintln(w, "Benchmark")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Buy & Hold:    %.2f%%\n", rep.BenchmarkReturn*100)
	fmt.Fprintf(w, "Alpha:         %.2f%%\n", rep.Alpha*100)
	if rep.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", rep.RunID)
	}
	fmt.Fprintln(w)
}

// exportRun writes the optional file exports of a finished run.
func exportRun(rep *service.Report, orgPath, tradesCSV, equityCSV string) error {
	if orgPath == "" && tradesCSV == "" && equityCSV == "" {
		return nil
	}
	runID := rep.RunID
	if runID == "" {
		runID = id.New()
	}
	rec, err := journal.NewRecord(runID, time.Now(), rep.Result)
	if err != nil {
		return err
	}
	return writeExports(rec, orgPath, tradesCSV, equityCSV)
}

func writeExports(rec journal.Record, orgPath, tradesCSV, equityCSV string) error {
	write := func(path string, fn func(io.Writer) error) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		return f.Close()
	}

	if err := write(orgPath, func(w io.Writer) error { return journal.WriteOrg(w, rec) }); err != nil {
		return err
	}
	if err := write(tradesCSV, func(w io.Writer) error { return journal.WriteTradesCSV(w, rec.Trades) }); err != nil {
		return err
	}
	return write(equityCSV, func(w io.Writer) error { return journal.WriteEquityCSV(w, rec.Equity) })
}
