package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// WriteTradesCSV writes a trade log with a header row.
func WriteTradesCSV(w io.Writer, trades []TradeRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"seq", "entry_time", "exit_time", "entry_price", "exit_price", "size", "gross_pnl", "commission", "net_pnl", "reason"}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write([]string{
			strconv.Itoa(t.Seq),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			t.EntryPrice.String(),
			t.ExitPrice.String(),
			t.Size.String(),
			t.GrossPnL.String(),
			t.Commission.String(),
			t.NetPnL.String(),
			t.Reason,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes an equity curve with a header row.
func WriteEquityCSV(w io.Writer, eq []EquityRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "equity"}); err != nil {
		return err
	}
	for _, e := range eq {
		if err := cw.Write([]string{e.Time.UTC().Format(time.RFC3339), e.Equity.String()}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var orgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"date":   func(t time.Time) string { return t.UTC().Format("2006-01-02") },
	"stamp":  func(t time.Time) string { return t.UTC().Format("2006-01-02 Mon 15:04") },
	"money":  func(d decimal.Decimal) string { return d.StringFixed(2) },
	"pf": func(r Run) string {
		switch {
		case r.Trades == 0:
			return "n/a"
		case math.IsInf(r.ProfitFactorValue(), 1):
			return "inf"
		}
		return fmt.Sprintf("%.2f", r.ProfitFactor.Float64)
	},
	"trade": FormatTradeOrg,
}

var orgTemplate = template.Must(template.New("run").Funcs(orgFuncs).Parse(RunOrgTemplate))

// RunOrgTemplate renders a Record as an Org-mode entry.
const RunOrgTemplate = `* BACKTEST: {{.Run.Strategy}}{{if .Run.Symbol}} {{.Run.Symbol}}{{end}}
:PROPERTIES:
:RUN_ID:      {{.Run.RunID}}
:STRATEGY:    {{.Run.Strategy}}
:SYMBOL:      {{if .Run.Symbol}}{{.Run.Symbol}}{{else}}(symbol?){{end}}
:START_DATE:  {{date .Run.Start}}
:END_DATE:    {{date .Run.End}}
:BARS:        {{.Run.Bars}}
:START_BAL:   {{money .Run.InitialCash}}
:END_BAL:     {{money .Run.FinalEquity}}
:NET_PL:      {{money .Run.NetProfit}}
:RETURN_PCT:  {{printf "%.2f" (mul100 .Run.TotalReturn)}}
:MAX_DD_PCT:  {{printf "%.2f" (mul100 .Run.MaxDrawdown)}}
:TRADES:      {{.Run.Trades}}
:WINS:        {{.Run.Wins}}
:LOSSES:      {{.Run.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .Run.WinRate)}}
:PROFIT_FAC:  {{pf .Run}}
:CREATED:     [{{stamp .Run.Created}}]
:END:

** Strategy Parameters
| Parameter       | Value |
|-----------------+-------|
{{- range $k, $v := .Params }}
| {{$k}} | {{$v}} |
{{- end }}
| commission_rate | {{.Run.CommissionRate}} |

** Performance Summary
- Net P/L:          *{{money .Run.NetProfit}}*
- Return:           *{{printf "%.2f" (mul100 .Run.TotalReturn)}}%*
- Annualized:       *{{printf "%.2f" (mul100 .Run.AnnualizedReturn)}}%*
- Sharpe:           *{{printf "%.2f" .Run.Sharpe}}*
- Sortino:          *{{printf "%.2f" .Run.Sortino}}*
- Max Drawdown:     *{{printf "%.2f" (mul100 .Run.MaxDrawdown)}}%*
- Win Rate:         *{{printf "%.2f" (mul100 .Run.WinRate)}}%*
- Profit Factor:    *{{pf .Run}}*
- Commission:       *{{money .Run.Commission}}*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Run.Wins}} |
| Losses  | {{.Run.Losses}} |
| Total   | {{.Run.Trades}} |
{{- if .Trades }}

** Trades
{{- range .Trades }}
{{ trade . }}
{{- end }}
{{- end }}
`

// WriteOrg renders rec as an Org-mode entry.
func WriteOrg(w io.Writer, rec Record) error {
	params, err := rec.Run.ParamsMap()
	if err != nil {
		return err
	}
	return orgTemplate.Execute(w, struct {
		Record
		Params map[string]float64
	}{rec, params})
}

// FormatTradeOrg renders one trade as an Org-mode heading with a
// properties drawer.
func FormatTradeOrg(t TradeRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** Trade %d (%s)\n", t.Seq, shortID(t.RunID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":RUN_ID: %s\n", t.RunID)
	fmt.Fprintf(&b, ":SEQ: %d\n", t.Seq)
	fmt.Fprintf(&b, ":SIZE: %s\n", t.Size)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", t.EntryPrice.StringFixed(4))
	fmt.Fprintf(&b, ":EXIT_PRICE: %s\n", t.ExitPrice.StringFixed(4))
	fmt.Fprintf(&b, ":ENTRY_TIME: %s\n", t.EntryTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":EXIT_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":NET_PL: %s\n", t.NetPnL.StringFixed(2))
	fmt.Fprintf(&b, ":COMMISSION: %s\n", t.Commission.StringFixed(2))
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:")
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
