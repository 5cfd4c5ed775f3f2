// Package journal persists finished backtest runs and exports them.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/strategies"
)

// ErrNotFound is returned when a run id has no row.
var ErrNotFound = errors.New("run not found")

// Run mirrors the backtest_runs table. Money is stored as decimal text.
type Run struct {
	RunID    string    `db:"run_id"`
	Created  time.Time `db:"created_at"`
	Strategy string    `db:"strategy"`
	// Params is a JSON object of the strategy parameters.
	Params string    `db:"params"`
	Symbol string    `db:"symbol"`
	Start  time.Time `db:"start_time"`
	End    time.Time `db:"end_time"`
	Bars   int       `db:"bars"`

	InitialCash    decimal.Decimal `db:"initial_cash"`
	FinalEquity    decimal.Decimal `db:"final_equity"`
	NetProfit      decimal.Decimal `db:"net_profit"`
	Commission     decimal.Decimal `db:"commission"`
	CommissionRate decimal.Decimal `db:"commission_rate"`

	TotalReturn      float64 `db:"total_return"`
	AnnualizedReturn float64 `db:"annualized_return"`
	Sharpe           float64 `db:"sharpe"`
	Sortino          float64 `db:"sortino"`
	MaxDrawdown      float64 `db:"max_drawdown"`

	Trades  int     `db:"total_trades"`
	Wins    int     `db:"wins"`
	Losses  int     `db:"losses"`
	WinRate float64 `db:"win_rate"`
	// ProfitFactor is NULL when there were gains and no losses.
	ProfitFactor sql.NullFloat64 `db:"profit_factor"`
}

// ParamsMap decodes Params.
func (r Run) ParamsMap() (strategies.Params, error) {
	p := strategies.Params{}
	if r.Params == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(r.Params), &p); err != nil {
		return nil, fmt.Errorf("run %s params: %w", r.RunID, err)
	}
	return p, nil
}

// ProfitFactorValue turns the nullable column back into the in-memory
// representation, where NULL is +Inf.
func (r Run) ProfitFactorValue() float64 {
	if !r.ProfitFactor.Valid {
		return math.Inf(1)
	}
	return r.ProfitFactor.Float64
}

// TradeRow mirrors the trades table.
type TradeRow struct {
	RunID      string          `db:"run_id"`
	Seq        int             `db:"seq"`
	EntryTime  time.Time       `db:"entry_time"`
	ExitTime   time.Time       `db:"exit_time"`
	EntryPrice decimal.Decimal `db:"entry_price"`
	ExitPrice  decimal.Decimal `db:"exit_price"`
	Size       decimal.Decimal `db:"size"`
	GrossPnL   decimal.Decimal `db:"gross_pnl"`
	Commission decimal.Decimal `db:"commission"`
	NetPnL     decimal.Decimal `db:"net_pnl"`
	Reason     string          `db:"reason"`
}

// EquityRow mirrors the equity table.
type EquityRow struct {
	RunID  string          `db:"run_id"`
	Seq    int             `db:"seq"`
	Time   time.Time       `db:"time"`
	Equity decimal.Decimal `db:"equity"`
}

// Record is a run with its trade log and equity curve.
type Record struct {
	Run    Run
	Trades []TradeRow
	Equity []EquityRow
}

// NewRecord flattens a result into table rows under runID.
func NewRecord(runID string, created time.Time, r *backtest.Result) (Record, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return Record{}, fmt.Errorf("encode params: %w", err)
	}
	if r.Params == nil {
		params = []byte("{}")
	}
	m := r.Metrics

	run := Run{
		RunID:            runID,
		Created:          created.UTC(),
		Strategy:         r.Strategy,
		Params:           string(params),
		Symbol:           r.Symbol,
		Start:            r.Start.UTC(),
		End:              r.End.UTC(),
		Bars:             r.Bars,
		InitialCash:      r.InitialCash,
		FinalEquity:      m.FinalEquity,
		NetProfit:        m.NetProfit,
		Commission:       r.Commission,
		CommissionRate:   r.CommissionRate,
		TotalReturn:      m.TotalReturn,
		AnnualizedReturn: m.AnnualizedReturn,
		Sharpe:           m.Sharpe,
		Sortino:          m.Sortino,
		MaxDrawdown:      m.MaxDrawdown,
		Trades:           m.TotalTrades,
		Wins:             m.WinningTrades,
		Losses:           m.LosingTrades,
		WinRate:          m.WinRate,
	}
	if pf := m.ProfitFactorValue(); pf != nil {
		run.ProfitFactor = sql.NullFloat64{Float64: *pf, Valid: true}
	}

	rec := Record{Run: run}
	for _, t := range r.Trades {
		rec.Trades = append(rec.Trades, TradeRow{
			RunID:      runID,
			Seq:        t.Seq,
			EntryTime:  t.EntryTime.UTC(),
			ExitTime:   t.ExitTime.UTC(),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Size:       t.Size,
			GrossPnL:   t.GrossPnL,
			Commission: t.Commission,
			NetPnL:     t.NetPnL,
			Reason:     t.Reason,
		})
	}
	for i, p := range r.Equity {
		rec.Equity = append(rec.Equity, EquityRow{RunID: runID, Seq: i, Time: p.Time.UTC(), Equity: p.Equity})
	}
	return rec, nil
}
