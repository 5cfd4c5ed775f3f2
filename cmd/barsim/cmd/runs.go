package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/journal"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Query journaled backtest runs",
		Long: `Query and export runs saved by backtest, compare and optimize.

Subcommands:
  list    - List runs, newest first
  show    - Print one run as Org-mode
  export  - Write a run's trades or equity curve as CSV
  delete  - Remove a run and its rows

Examples:
  barsim runs list --db runs.sqlite
  barsim runs show <run-id> --db runs.sqlite
  barsim runs export <run-id> --trades-csv trades.csv --db runs.sqlite`,
	}
	cmd.AddCommand(newRunsListCmd(a), newRunsShowCmd(a), newRunsExportCmd(a), newRunsDeleteCmd(a))
	return cmd
}

// requireJournal opens the store or explains how to configure one.
func (a *app) requireJournal(ctx context.Context) (*journal.Store, error) {
	s, err := a.openJournal(ctx)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if s == nil {
		return nil, errors.New("no journal configured (use --db or journal.driver)")
	}
	return s, nil
}

func newRunsListCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.requireJournal(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("query runs: %w", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tSTRATEGY\tSYMBOL\tBARS\tRETURN\tSHARPE\tTRADES\tPF")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f%%\t%.2f\t%d\t%s\n",
					r.RunID, r.Created.Local().Format("2006-01-02 15:04"), r.Strategy, r.Symbol, r.Bars,
					r.TotalReturn*100, r.Sharpe, r.Trades, backtest.FormatProfitFactor(r.ProfitFactorValue(), r.Trades))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list (0 for all)")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run as Org-mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.requireJournal(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := s.LoadRecord(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			return journal.WriteOrg(cmd.OutOrStdout(), rec)
		},
	}
}

func newRunsExportCmd(a *app) *cobra.Command {
	var orgPath, tradesCSV, equityCSV string
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export a run's trades, equity curve or report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgPath == "" && tradesCSV == "" && equityCSV == "" {
				return errors.New("nothing to export (use --org, --trades-csv or --equity-csv)")
			}
			s, err := a.requireJournal(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := s.LoadRecord(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			return writeExports(rec, orgPath, tradesCSV, equityCSV)
		},
	}
	f := cmd.Flags()
	f.StringVar(&orgPath, "org", "", "write an Org-mode report to this file")
	f.StringVar(&tradesCSV, "trades-csv", "", "write the trade log as CSV to this file")
	f.StringVar(&equityCSV, "equity-csv", "", "write the equity curve as CSV to this file")
	return cmd
}

func newRunsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.requireJournal(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
