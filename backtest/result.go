package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/performance"
	"github.com/rustyeddy/barsim/strategies"
)

// Result is everything a completed run produced. It is never modified after
// Run returns it.
type Result struct {
	Strategy string            `json:"strategy"`
	Params   strategies.Params `json:"params"`
	Symbol   string            `json:"symbol"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Bars     int               `json:"bars"`

	InitialCash    decimal.Decimal `json:"initial_cash"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	FinalCash      decimal.Decimal `json:"final_cash"`
	FinalPosition  decimal.Decimal `json:"final_position"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Commission     decimal.Decimal `json:"commission"`

	Fills   []broker.Fill             `json:"fills"`
	Trades  []broker.Trade            `json:"trades"`
	Equity  []performance.EquityPoint `json:"equity"`
	Metrics performance.Report        `json:"metrics"`
}

// Summary is the headline a front end shows for a run.
type Summary struct {
	Strategy     string          `json:"strategy"`
	Params       string          `json:"params"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	InitialCash  decimal.Decimal `json:"initial_cash"`
	FinalValue   decimal.Decimal `json:"final_value"`
	TotalReturn  float64         `json:"total_return"`
	Sharpe       float64         `json:"sharpe"`
	MaxDrawdown  float64         `json:"max_drawdown"`
	TotalTrades  int             `json:"total_trades"`
	WinRate      float64         `json:"win_rate"`
	ProfitFactor *float64        `json:"profit_factor"`
}

func (r *Result) Summary() Summary {
	return Summary{
		Strategy:     r.Strategy,
		Params:       r.Params.String(),
		Start:        r.Start,
		End:          r.End,
		InitialCash:  r.InitialCash,
		FinalValue:   r.Metrics.FinalEquity,
		TotalReturn:  r.Metrics.TotalReturn,
		Sharpe:       r.Metrics.Sharpe,
		MaxDrawdown:  r.Metrics.MaxDrawdown,
		TotalTrades:  r.Metrics.TotalTrades,
		WinRate:      r.Metrics.WinRate,
		ProfitFactor: r.Metrics.ProfitFactorValue(),
	}
}
