// Package backtest replays a bar series against a strategy.
//
// A run is strictly sequential. An intent decided on the close of bar i is
// filled at the open of bar i+1, before the strategy sees bar i+1, and equity
// is sampled at every close after that bar's fill. An intent produced on the
// final bar has no next open and is discarded. Whatever position is still
// open after the final bar is closed at the final close so every trade is
// realized in the result.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/performance"
	"github.com/rustyeddy/barsim/strategies"
)

// EndOfDataReason marks trades closed by the engine after the last bar.
const EndOfDataReason = "end of data"

// Engine runs backtests with one Config. It holds no per-run state, so one
// Engine may serve many concurrent runs.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Run builds a fresh strategy from factory and params and replays series
// against it. On any error, including cancellation of ctx, the result is nil.
func (e *Engine) Run(ctx context.Context, series market.Series, factory strategies.Factory, params strategies.Params) (*Result, error) {
	cfg := e.cfg
	log := cfg.logger()

	if err := e.check(series); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: no strategy factory", ErrInvalidConfig)
	}

	sim, err := broker.NewSimulator(cfg.InitialCash, cfg.CommissionRate, cfg.Sizing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	strat, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	bpy := cfg.BarsPerYear
	if bpy == 0 {
		bpy = market.BarsPerYear(series.Interval())
	}

	n := series.Len()
	log.Info("backtest start",
		"strategy", strat.Name(),
		"symbol", series.Symbol,
		"bars", n,
		"from", series.First().Time,
		"to", series.Last().Time,
	)

	var (
		pending *broker.Intent
		fills   []broker.Fill
		equity  = make([]performance.EquityPoint, 0, n)
	)

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := series.At(i)

		if pending != nil {
			fill, err := sim.Apply(*pending, bar.Open, bar.Time)
			if err != nil {
				return nil, fmt.Errorf("fill at bar %d (%s): %w", i, bar.Time.Format(time.RFC3339), err)
			}
			pending = nil
			if fill.Executed {
				fills = append(fills, fill)
				log.Debug("fill",
					"bar", i,
					"action", fill.Action.String(),
					"price", fill.Price.String(),
					"size", fill.Size.String(),
					"commission", fill.Commission.String(),
					"reason", fill.Reason,
				)
			}
		}

		sim.Mark(bar.Close)
		intent, err := decide(strat, series.Window(i), sim.State())
		if err != nil {
			return nil, &StrategyError{Strategy: strat.Name(), Bar: i, Time: bar.Time, Err: err}
		}

		equity = append(equity, performance.EquityPoint{Time: bar.Time, Equity: sim.State().Equity()})

		if intent.Action == broker.Hold {
			continue
		}
		if i == n-1 {
			log.Debug("intent on final bar discarded", "action", intent.Action.String(), "reason", intent.Reason)
			continue
		}
		log.Debug("intent", "bar", i, "action", intent.Action.String(), "reason", intent.Reason)
		pending = &intent
	}

	last := series.Last()
	if !sim.State().Flat() {
		fill := sim.Close(last.Close, last.Time, EndOfDataReason)
		fills = append(fills, fill)
		equity[len(equity)-1].Equity = sim.State().Equity()
		log.Info("closed open position at end of data",
			"price", fill.Price.String(),
			"size", fill.Size.String(),
		)
	}

	st := sim.State()
	trades := sim.Trades()
	res := &Result{
		Strategy:       strat.Name(),
		Params:         params.Clone(),
		Symbol:         series.Symbol,
		Start:          series.First().Time,
		End:            last.Time,
		Bars:           n,
		InitialCash:    cfg.InitialCash,
		CommissionRate: cfg.CommissionRate,
		FinalCash:      st.Cash,
		FinalPosition:  st.PositionSize,
		RealizedPnL:    st.RealizedPnL,
		Commission:     st.Commission,
		Fills:          fills,
		Trades:         trades,
		Equity:         equity,
		Metrics: performance.Summarize(equity, trades, cfg.InitialCash, performance.Options{
			BarsPerYear:  bpy,
			RiskFreeRate: cfg.RiskFreeRate,
		}),
	}

	log.Info("backtest done",
		"strategy", res.Strategy,
		"final_equity", res.Metrics.FinalEquity.StringFixed(2),
		"return", res.Metrics.TotalReturn,
		"trades", len(trades),
	)
	return res, nil
}

// check validates the config and the series before anything runs.
func (e *Engine) check(series market.Series) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if series.Len() < 2 {
		return fmt.Errorf("%w: got %d", ErrEmptyData, series.Len())
	}
	if err := series.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidData, err)
	}
	return nil
}

// decide calls the strategy and turns a panic into an error.
func decide(s strategies.Strategy, w market.Series, st broker.PortfolioState) (in broker.Intent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	in, err = s.OnBar(w, st)
	if err == nil && in.Action != broker.Hold && in.Action != broker.Buy && in.Action != broker.Sell {
		err = fmt.Errorf("unknown action %d", in.Action)
	}
	return in, err
}
