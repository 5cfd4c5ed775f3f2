// Package performance turns a finished run's equity curve and trade log into
// return, risk and trade-quality metrics.
package performance

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
)

// DefaultBarsPerYear annualizes daily bars.
const DefaultBarsPerYear = 252

// ProfitFactorInfinite is reported as the profit factor when there are
// winning trades and no losing ones. It is +Inf; JSON and SQL outputs carry
// it as null.
var ProfitFactorInfinite = math.Inf(1)

// EquityPoint is total equity sampled at a bar's close.
type EquityPoint struct {
	Time   time.Time       `json:"time"`
	Equity decimal.Decimal `json:"equity"`
}

// Options control annualization.
type Options struct {
	// BarsPerYear scales per-bar statistics. Zero means DefaultBarsPerYear.
	BarsPerYear float64
	// RiskFreeRate is the annual rate subtracted from returns for Sharpe.
	RiskFreeRate float64
}

func (o Options) barsPerYear() float64 {
	if o.BarsPerYear > 0 {
		return o.BarsPerYear
	}
	return DefaultBarsPerYear
}

// Report is the metrics summary of one run. Degenerate inputs (no trades,
// flat equity, a single point) produce zeros, never NaN.
type Report struct {
	InitialCash decimal.Decimal `json:"initial_cash"`
	FinalEquity decimal.Decimal `json:"final_equity"`
	NetProfit   decimal.Decimal `json:"net_profit"`

	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	Volatility       float64 `json:"volatility"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`

	// MaxDrawdown is a fraction of the running peak in [0, 1].
	MaxDrawdown       float64         `json:"max_drawdown"`
	MaxDrawdownAmount decimal.Decimal `json:"max_drawdown_amount"`
	MaxDrawdownTime   time.Time       `json:"max_drawdown_time"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	GrossProfit     decimal.Decimal `json:"gross_profit"`
	GrossLoss       decimal.Decimal `json:"gross_loss"`
	ProfitFactor    float64         `json:"-"`
	AvgPnL          decimal.Decimal `json:"avg_pnl"`
	AvgWin          decimal.Decimal `json:"avg_win"`
	AvgLoss         decimal.Decimal `json:"avg_loss"`
	LargestWin      decimal.Decimal `json:"largest_win"`
	LargestLoss     decimal.Decimal `json:"largest_loss"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	AvgDuration     time.Duration   `json:"avg_duration"`

	Bars        int     `json:"bars"`
	BarsPerYear float64 `json:"bars_per_year"`
}

// ProfitFactorValue returns nil when the profit factor is infinite.
func (r Report) ProfitFactorValue() *float64 {
	if math.IsInf(r.ProfitFactor, 0) || math.IsNaN(r.ProfitFactor) {
		return nil
	}
	pf := r.ProfitFactor
	return &pf
}

func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	return json.Marshal(struct {
		plain
		ProfitFactor *float64 `json:"profit_factor"`
	}{plain(r), r.ProfitFactorValue()})
}

// Summarize computes the report for an equity curve and trade log.
func Summarize(equity []EquityPoint, trades []broker.Trade, initialCash decimal.Decimal, opts Options) Report {
	bpy := opts.barsPerYear()
	r := Report{
		InitialCash: initialCash,
		FinalEquity: initialCash,
		Bars:        len(equity),
		BarsPerYear: bpy,
	}
	if len(equity) > 0 {
		r.FinalEquity = equity[len(equity)-1].Equity
	}
	r.NetProfit = r.FinalEquity.Sub(initialCash)
	if initialCash.IsPositive() {
		r.TotalReturn = r.FinalEquity.Div(initialCash).InexactFloat64() - 1
	}

	r.AnnualizedReturn = annualize(r.TotalReturn, len(equity), bpy)
	returnStats(&r, equity, bpy, opts.RiskFreeRate)
	r.MaxDrawdown, r.MaxDrawdownAmount, r.MaxDrawdownTime = maxDrawdown(equity)
	tradeStats(&r, trades)
	return r
}

func annualize(total float64, points int, bpy float64) float64 {
	if points < 2 {
		return 0
	}
	years := float64(points-1) / bpy
	if years <= 0 {
		return 0
	}
	if total <= -1 {
		return -1
	}
	return math.Pow(1+total, 1/years) - 1
}

// Returns converts an equity curve to simple per-bar returns.
func Returns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if !prev.IsPositive() {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i].Equity.Div(prev).InexactFloat64()-1)
	}
	return out
}

func returnStats(r *Report, equity []EquityPoint, bpy, riskFree float64) {
	rets := Returns(equity)
	if len(rets) < 2 {
		return
	}

	rf := riskFree / bpy
	mean := 0.0
	for _, x := range rets {
		mean += x
	}
	mean /= float64(len(rets))

	ss, down := 0.0, 0.0
	for _, x := range rets {
		d := x - mean
		ss += d * d
		if x < rf {
			down += (x - rf) * (x - rf)
		}
	}
	sd := math.Sqrt(ss / float64(len(rets)-1))
	scale := math.Sqrt(bpy)

	r.Volatility = sd * scale
	if sd > 0 {
		r.Sharpe = (mean - rf) / sd * scale
	}
	if dd := math.Sqrt(down / float64(len(rets))); dd > 0 {
		r.Sortino = (mean - rf) / dd * scale
	}
}

// maxDrawdown walks the curve once, tracking the running peak.
func maxDrawdown(equity []EquityPoint) (frac float64, amount decimal.Decimal, at time.Time) {
	if len(equity) == 0 {
		return 0, decimal.Zero, time.Time{}
	}
	peak := equity[0].Equity
	for _, p := range equity {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		dd := peak.Sub(p.Equity)
		if dd.GreaterThan(amount) {
			amount = dd
		}
		if !peak.IsPositive() {
			continue
		}
		if f := dd.Div(peak).InexactFloat64(); f > frac {
			frac = f
			at = p.Time
		}
	}
	return math.Min(frac, 1), amount, at
}

func tradeStats(r *Report, trades []broker.Trade) {
	r.TotalTrades = len(trades)
	if len(trades) == 0 {
		return
	}

	var dur time.Duration
	sum := decimal.Zero
	for _, t := range trades {
		net := t.NetPnL
		sum = sum.Add(net)
		r.TotalCommission = r.TotalCommission.Add(t.Commission)
		dur += t.Duration()

		switch {
		case net.IsPositive():
			r.WinningTrades++
			r.GrossProfit = r.GrossProfit.Add(net)
			if r.WinningTrades == 1 || net.GreaterThan(r.LargestWin) {
				r.LargestWin = net
			}
		case net.IsNegative():
			r.LosingTrades++
			r.GrossLoss = r.GrossLoss.Add(net.Abs())
			if r.LosingTrades == 1 || net.LessThan(r.LargestLoss) {
				r.LargestLoss = net
			}
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	r.AvgPnL = sum.Div(n)
	r.AvgDuration = dur / time.Duration(len(trades))
	r.WinRate = float64(r.WinningTrades) / float64(len(trades))
	if r.WinningTrades > 0 {
		r.AvgWin = r.GrossProfit.Div(decimal.NewFromInt(int64(r.WinningTrades)))
	}
	if r.LosingTrades > 0 {
		r.AvgLoss = r.GrossLoss.Neg().Div(decimal.NewFromInt(int64(r.LosingTrades)))
	}

	switch {
	case r.GrossLoss.IsPositive():
		r.ProfitFactor = r.GrossProfit.Div(r.GrossLoss).InexactFloat64()
	case r.GrossProfit.IsPositive():
		r.ProfitFactor = ProfitFactorInfinite
	}
}
