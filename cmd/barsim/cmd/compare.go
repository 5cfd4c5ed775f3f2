package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/strategies"
)

func newCompareCmd(a *app) *cobra.Command {
	var (
		df     dataFlags
		names  []string
		cash   string
		comm   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several strategies over the same bars",
		Long: `Compare loads the bars once, runs each strategy with its default
parameters and ranks them by total return. A strategy that fails is
reported in its row and does not stop the others.

Examples:
  barsim compare
  barsim compare --csv data/spy.csv --strategies sma,rsi,bollinger`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := applyAccount(a, cash, comm); err != nil {
				return err
			}
			if len(names) == 0 {
				for _, n := range strategies.Names() {
					if n != "noop" {
						names = append(names, n)
					}
				}
			}
			src, err := df.source(cmd, a)
			if err != nil {
				return err
			}
			svc, err := a.newService(ctx)
			if err != nil {
				return err
			}

			// the configured strategy keeps its configured params
			params := map[string]strategies.Params{}
			for _, n := range names {
				if n == a.cfg.Strategy.Name {
					params[n] = a.cfg.Strategy.Params
				}
			}

			cmp, err := svc.Compare(ctx, src, names, params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cmp)
			}

			fmt.Fprintf(out, "Symbol: %s  Bars: %d\n\n", cmp.Symbol, cmp.Bars)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STRATEGY\tRETURN\tSHARPE\tMAX DD\tTRADES\tWIN RATE\tPF\tALPHA")
			for _, e := range cmp.Entries {
				if e.Err != nil {
					fmt.Fprintf(tw, "%s\terror: %v\t\t\t\t\t\t\n", e.Name, e.Err)
					continue
				}
				m := e.Report.Result.Metrics
				fmt.Fprintf(tw, "%s\t%.2f%%\t%.2f\t%.2f%%\t%d\t%.1f%%\t%s\t%.2f%%\n",
					e.Report.Strategy, m.TotalReturn*100, m.Sharpe, m.MaxDrawdown*100,
					m.TotalTrades, m.WinRate*100, backtest.FormatProfitFactor(m.ProfitFactor, m.TotalTrades),
					e.Report.Alpha*100)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if cmp.Best != "" {
				fmt.Fprintf(out, "\nBest: %s (%.2f%%)\n", cmp.Best, cmp.BestReturn*100)
			}
			return nil
		},
	}
	df.add(cmd)
	f := cmd.Flags()
	f.StringSliceVar(&names, "strategies", nil, "strategies to compare (default: all except noop)")
	f.StringVar(&cash, "cash", "", "initial cash")
	f.StringVar(&comm, "commission", "", "commission rate per fill")
	f.BoolVar(&asJSON, "json", false, "print the comparison as JSON")
	return cmd
}
