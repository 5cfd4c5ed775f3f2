package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/service"
)

func newOptimizeCmd(a *app) *cobra.Command {
	var (
		df        dataFlags
		strategy  string
		params    map[string]string
		grid      []string
		objective string
		top       int
		cash      string
		comm      string
	)
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Grid-search strategy parameters",
		Long: `Optimize runs every combination of the grid and ranks the results by
an objective: total_return, sharpe, win_rate, profit_factor or
max_drawdown (minimized). Combinations the strategy rejects are skipped.

A grid value list is either comma separated or start:stop:step.

Examples:
  barsim optimize -s sma --grid short_period=5,10,20 --grid long_period=30:60:10
  barsim optimize -s rsi --grid period=7,14,21 --objective total_return --top 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := applyAccount(a, cash, comm); err != nil {
				return err
			}
			name := strategy
			if name == "" {
				name = a.cfg.Strategy.Name
			}
			base, err := parseParams(params)
			if err != nil {
				return err
			}
			g, err := parseGrid(grid)
			if err != nil {
				return err
			}
			src, err := df.source(cmd, a)
			if err != nil {
				return err
			}
			svc, err := a.newService(ctx)
			if err != nil {
				return err
			}

			res, err := svc.Optimize(ctx, service.OptimizeRequest{
				Source:    src,
				Strategy:  name,
				Base:      base,
				Grid:      g,
				Objective: backtest.Objective(objective),
			})
			if res == nil {
				return err
			}

			out := cmd.OutOrStdout()
			ranked := res.Ranked()
			fmt.Fprintf(out, "Objective: %s  Combinations: %d  Skipped: %d\n\n", res.Objective, g.Size(), res.Skipped)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RANK\tPARAMS\tSCORE\tRETURN\tSHARPE\tMAX DD\tTRADES")
			for i, t := range ranked {
				if top > 0 && i >= top {
					break
				}
				m := t.Result.Metrics
				fmt.Fprintf(tw, "%d\t%s\t%.4f\t%.2f%%\t%.2f\t%.2f%%\t%d\n",
					i+1, t.Params, t.Score, m.TotalReturn*100, m.Sharpe, m.MaxDrawdown*100, m.TotalTrades)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nBest: %s\n", res.Best.Params)
			if res.BestReport.RunID != "" {
				fmt.Fprintf(out, "Run ID: %s\n", res.BestReport.RunID)
			}
			return nil
		},
	}
	df.add(cmd)
	f := cmd.Flags()
	f.StringVarP(&strategy, "strategy", "s", "", "strategy name")
	f.StringToStringVarP(&params, "param", "p", nil, "fixed parameter as key=value (repeatable)")
	f.StringArrayVarP(&grid, "grid", "g", nil, "parameter values as key=v1,v2,... or key=start:stop:step (repeatable)")
	f.StringVar(&objective, "objective", string(backtest.ObjectiveSharpe), "metric to optimize")
	f.IntVar(&top, "top", 10, "rows to print (0 for all)")
	f.StringVar(&cash, "cash", "", "initial cash")
	f.StringVar(&comm, "commission", "", "commission rate per fill")
	return cmd
}

// parseGrid reads key=v1,v2 and key=start:stop:step entries.
func parseGrid(entries []string) (backtest.Grid, error) {
	g := backtest.Grid{}
	for _, e := range entries {
		k, list, ok := strings.Cut(e, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("grid %q: want key=values", e)
		}
		vals, err := parseValues(list)
		if err != nil {
			return nil, fmt.Errorf("grid %s: %w", k, err)
		}
		g[k] = append(g[k], vals...)
	}
	return g, nil
}

func parseValues(list string) ([]float64, error) {
	if parts := strings.Split(list, ":"); len(parts) == 3 {
		var n [3]float64
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, err
			}
			n[i] = v
		}
		start, stop, step := n[0], n[1], n[2]
		if step <= 0 || stop < start {
			return nil, fmt.Errorf("range %q must have step > 0 and stop >= start", list)
		}
		var out []float64
		for i := 0; ; i++ {
			v := start + float64(i)*step
			if v > stop+step*1e-9 {
				break
			}
			out = append(out, v)
		}
		return out, nil
	}

	var out []float64
	for _, p := range strings.Split(list, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return out, nil
}
