package backtest

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

const rule = "--------------------------------------------------"

// PrintResult writes a human-readable report of r.
func PrintResult(w io.Writer, r *Result) {
	m := r.Metrics

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	if len(r.Params) > 0 {
		fmt.Fprintf(w, "Parameters:    %s\n", r.Params)
	}
	if r.Symbol != "" {
		fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", r.Bars)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Trades:        %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", m.WinningTrades)
	fmt.Fprintf(w, "Losses:        %d\n", m.LosingTrades)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", m.WinRate*100)
	if m.TotalTrades > 0 {
		fmt.Fprintf(w, "Avg P/L:       %s\n", m.AvgPnL.StringFixed(2))
		fmt.Fprintf(w, "Largest Win:   %s\n", m.LargestWin.StringFixed(2))
		fmt.Fprintf(w, "Largest Loss:  %s\n", m.LargestLoss.StringFixed(2))
		fmt.Fprintf(w, "Profit Factor: %s\n", FormatProfitFactor(m.ProfitFactor, m.TotalTrades))
		fmt.Fprintf(w, "Avg Duration:  %s\n", m.AvgDuration)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Start Balance: %s\n", r.InitialCash.StringFixed(2))
	fmt.Fprintf(w, "End Balance:   %s\n", m.FinalEquity.StringFixed(2))
	fmt.Fprintf(w, "Net P/L:       %s\n", m.NetProfit.StringFixed(2))
	fmt.Fprintf(w, "Commission:    %s\n", r.Commission.StringFixed(2))
	fmt.Fprintf(w, "Return:        %.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "Annualized:    %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(w, "Volatility:    %.2f%%\n", m.Volatility*100)
	fmt.Fprintf(w, "Sharpe:        %.2f\n", m.Sharpe)
	fmt.Fprintf(w, "Sortino:       %.2f\n", m.Sortino)
	fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", m.MaxDrawdown*100)

	fmt.Fprintln(w)
}

// PrintTrades writes the trade log as an aligned table.
func PrintTrades(w io.Writer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tentry\texit\tentry px\texit px\tsize\tnet p/l\treturn\treason\t")
	for _, t := range r.Trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f%%\t%s\t\n",
			t.Seq,
			t.EntryTime.Format("2006-01-02"),
			t.ExitTime.Format("2006-01-02"),
			money(t.EntryPrice),
			money(t.ExitPrice),
			t.Size.String(),
			money(t.NetPnL),
			t.ReturnPct()*100,
			t.Reason,
		)
	}
	return tw.Flush()
}

// FormatProfitFactor renders the profit factor, including the infinite case.
func FormatProfitFactor(pf float64, trades int) string {
	switch {
	case trades == 0:
		return "n/a"
	case math.IsInf(pf, 1):
		return "inf"
	default:
		return fmt.Sprintf("%.2f", pf)
	}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
