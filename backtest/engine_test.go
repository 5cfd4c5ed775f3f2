package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/strategies"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// closesSeries builds daily bars whose open sits offset above the close.
func closesSeries(offset float64, closes ...float64) market.Series {
	bs := make([]market.Bar, len(closes))
	for i, c := range closes {
		o := c + offset
		bs[i] = market.Bar{
			Time:   day0.AddDate(0, 0, i),
			Open:   o,
			High:   math.Max(o, c),
			Low:    math.Min(o, c),
			Close:  c,
			Volume: 1000,
		}
	}
	return market.NewSeries("TEST", bs)
}

// wave is a deterministic trending, oscillating series.
func wave(n int) market.Series {
	closes := make([]float64, n)
	for i := range closes {
		x := float64(i)
		closes[i] = math.Round((100+0.15*x+8*math.Sin(x/4)+3*math.Sin(x/1.7))*100) / 100
	}
	return closesSeries(0.1, closes...)
}

func mustFactory(t *testing.T, name string) strategies.Factory {
	t.Helper()
	f, err := strategies.Lookup(name)
	require.NoError(t, err)
	return f
}

func testConfig() Config {
	return Config{
		InitialCash:    decimal.NewFromInt(10000),
		CommissionRate: decimal.Zero,
		Sizing:         broker.PercentOfEquity(1),
	}
}

// scripted emits fixed actions by bar index and records what it was shown.
type scripted struct {
	actions map[int]broker.Action
	errAt   int
	panicAt int
	onBar   func(i int)

	mu      sync.Mutex
	windows []int
	states  []broker.PortfolioState
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	i := w.Len() - 1
	s.mu.Lock()
	s.windows = append(s.windows, w.Len())
	s.states = append(s.states, st)
	s.mu.Unlock()

	if s.onBar != nil {
		s.onBar(i)
	}
	if s.errAt > 0 && i == s.errAt {
		return broker.HoldIntent, errors.New("indicator blew up")
	}
	if s.panicAt > 0 && i == s.panicAt {
		var m map[string]int
		m["boom"]++
	}
	if a, ok := s.actions[i]; ok {
		return broker.Intent{Action: a, Reason: fmt.Sprintf("script %d", i)}, nil
	}
	return broker.HoldIntent, nil
}

func factoryOf(s strategies.Strategy) strategies.Factory {
	return func(strategies.Params) (strategies.Strategy, error) { return s, nil }
}

type recordLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordLogger) Debug(msg string, kv ...any) { l.add(msg) }
func (l *recordLogger) Info(msg string, kv ...any)  { l.add(msg) }
func (l *recordLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func TestBuyHoldRisingSeries(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	ser := closesSeries(0, closes...)

	res, err := NewEngine(testConfig()).Run(context.Background(), ser, mustFactory(t, "buy_hold"), nil)
	require.NoError(t, err)

	m := res.Metrics
	assert.GreaterOrEqual(t, m.TotalTrades, 1)
	assert.InDelta(t, 0.99, m.TotalReturn, 0.03)
	assert.InDelta(t, 0.0, m.MaxDrawdown, 1e-9)
	assert.Equal(t, 100, res.Bars)
	require.Len(t, res.Equity, 100)
	assert.True(t, res.FinalPosition.IsZero())

	tr := res.Trades[0]
	assert.Equal(t, EndOfDataReason, tr.Reason)
	assert.Equal(t, ser.At(1).Time, tr.EntryTime, "filled at the open after the signal bar")
	assert.True(t, tr.EntryPrice.Equal(decimal.NewFromInt(101)))
	assert.True(t, tr.ExitPrice.Equal(decimal.NewFromInt(199)))

	// last equity point reflects the forced close
	assert.True(t, res.Equity[99].Equity.Equal(res.FinalCash))
}

func TestSMACrossNextBarOpenFills(t *testing.T) {
	// short=2/long=4 crosses up on bar 6 and down on bar 8
	ser := closesSeries(0.25, 10, 9, 8, 7, 6, 8, 10, 7, 6, 6)
	cfg := testConfig()
	cfg.Sizing = broker.FixedUnits(10)

	res, err := NewEngine(cfg).Run(context.Background(), ser, mustFactory(t, "sma"),
		strategies.Params{"short_period": 2, "long_period": 4})
	require.NoError(t, err)

	require.Len(t, res.Fills, 2)
	assert.Equal(t, broker.Buy, res.Fills[0].Action)
	assert.Equal(t, broker.Sell, res.Fills[1].Action)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, ser.At(7).Time, tr.EntryTime)
	assert.Equal(t, ser.At(9).Time, tr.ExitTime)
	assert.True(t, tr.EntryPrice.Equal(decimal.NewFromFloat(ser.At(7).Open)), "entry %s", tr.EntryPrice)
	assert.True(t, tr.ExitPrice.Equal(decimal.NewFromFloat(ser.At(9).Open)), "exit %s", tr.ExitPrice)
	assert.True(t, tr.NetPnL.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, "sma cross down", tr.Reason)
	assert.Equal(t, 1, res.Metrics.LosingTrades)
}

func TestBollingerBandCrossFills(t *testing.T) {
	// period 3, one deviation: close 7 breaks the lower band on bar 3 and
	// close 13 breaks the upper band on bar 4
	ser := closesSeries(0.5, 10, 10, 10, 7, 13, 14)
	cfg := testConfig()
	cfg.Sizing = broker.FixedUnits(10)

	res, err := NewEngine(cfg).Run(context.Background(), ser, mustFactory(t, "bollinger"),
		strategies.Params{"period": 3, "devfactor": 1})
	require.NoError(t, err)

	require.Len(t, res.Fills, 2)
	assert.Equal(t, broker.Buy, res.Fills[0].Action)
	assert.Equal(t, "close crossed below lower band", res.Fills[0].Reason)
	assert.Equal(t, broker.Sell, res.Fills[1].Action)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, ser.At(4).Time, tr.EntryTime)
	assert.Equal(t, ser.At(5).Time, tr.ExitTime)
	assert.True(t, tr.EntryPrice.Equal(decimal.NewFromFloat(13.5)), "entry %s", tr.EntryPrice)
	assert.True(t, tr.ExitPrice.Equal(decimal.NewFromFloat(14.5)), "exit %s", tr.ExitPrice)
	assert.True(t, tr.NetPnL.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "close crossed above upper band", tr.Reason)
}

func TestConservation(t *testing.T) {
	ser := wave(300)
	cfg := testConfig()
	cfg.CommissionRate = decimal.RequireFromString("0.0015")

	cases := map[string]strategies.Params{
		"sma":            {"short_period": 5, "long_period": 20},
		"rsi":            {"rsi_period": 6, "rsi_oversold": 35, "rsi_overbought": 65},
		"bollinger":      {"period": 10, "devfactor": 1.5, "stop_loss": 0.03},
		"buy_hold":       nil,
		"mean_reversion": {"period": 10, "threshold": 0.02, "take_profit": 0.05},
		"momentum":       {"period": 5, "momentum_threshold": 0.02},
	}
	for name, p := range cases {
		name, p := name, p
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			res, err := NewEngine(cfg).Run(context.Background(), ser, mustFactory(t, name), p)
			require.NoError(t, err)
			require.Positive(t, len(res.Trades), "series should produce trades")

			lhs := res.FinalCash.Add(res.FinalPosition.Mul(decimal.NewFromFloat(ser.Last().Close))).Add(res.Commission)
			rhs := res.InitialCash.Add(res.RealizedPnL)
			assert.True(t, lhs.Equal(rhs), "%s != %s", lhs, rhs)

			net := decimal.Zero
			for _, tr := range res.Trades {
				net = net.Add(tr.NetPnL)
			}
			assert.True(t, res.FinalCash.Equal(res.InitialCash.Add(net)))
			assert.True(t, res.Metrics.FinalEquity.Equal(res.FinalCash))

			assert.GreaterOrEqual(t, res.Metrics.MaxDrawdown, 0.0)
			assert.LessOrEqual(t, res.Metrics.MaxDrawdown, 1.0)
		})
	}
}

func TestIdempotent(t *testing.T) {
	ser := wave(200)
	eng := NewEngine(DefaultConfig())
	p := strategies.Params{"short_period": 4, "long_period": 12}

	a, err := eng.Run(context.Background(), ser, mustFactory(t, "sma"), p)
	require.NoError(t, err)
	b, err := eng.Run(context.Background(), ser, mustFactory(t, "sma"), p)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(ja, jb))
	assert.Equal(t, a, b)
}

func TestFlatSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100
	}
	ser := closesSeries(0, closes...)

	for _, name := range []string{"buy_hold", "sma", "noop"} {
		res, err := NewEngine(testConfig()).Run(context.Background(), ser, mustFactory(t, name), nil)
		require.NoError(t, err, name)
		assert.Equal(t, 0.0, res.Metrics.Sharpe, name)
		assert.Equal(t, 0.0, res.Metrics.MaxDrawdown, name)
		assert.False(t, math.IsNaN(res.Metrics.Volatility), name)
	}
}

func TestNoTradesReport(t *testing.T) {
	res, err := NewEngine(testConfig()).Run(context.Background(), wave(20), mustFactory(t, "noop"), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Metrics.TotalTrades)
	assert.Equal(t, 0.0, res.Metrics.WinRate)
	assert.Empty(t, res.Fills)
	assert.True(t, res.FinalCash.Equal(res.InitialCash))
}

func TestEmptyData(t *testing.T) {
	eng := NewEngine(testConfig())
	for _, ser := range []market.Series{market.NewSeries("X", nil), closesSeries(0, 100)} {
		res, err := eng.Run(context.Background(), ser, mustFactory(t, "noop"), nil)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrEmptyData), "got %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	ser := wave(30)

	t.Run("non-positive cash", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialCash = decimal.Zero
		_, err := NewEngine(cfg).Run(context.Background(), ser, mustFactory(t, "noop"), nil)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("bad sizing", func(t *testing.T) {
		cfg := testConfig()
		cfg.Sizing = broker.Sizing{}
		_, err := NewEngine(cfg).Run(context.Background(), ser, mustFactory(t, "noop"), nil)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})

	t.Run("short not below long", func(t *testing.T) {
		_, err := NewEngine(testConfig()).Run(context.Background(), ser, mustFactory(t, "sma"),
			strategies.Params{"short_period": 10, "long_period": 5})
		assert.True(t, errors.Is(err, ErrInvalidConfig))
		assert.True(t, errors.Is(err, strategies.ErrInvalidParams))
	})

	t.Run("nil factory", func(t *testing.T) {
		_, err := NewEngine(testConfig()).Run(context.Background(), ser, nil, nil)
		assert.True(t, errors.Is(err, ErrInvalidConfig))
	})
}

func TestInvalidData(t *testing.T) {
	bs := wave(5).Bars()
	bs[3].Time = bs[1].Time
	_, err := NewEngine(testConfig()).Run(context.Background(), market.NewSeries("X", bs), mustFactory(t, "noop"), nil)
	assert.True(t, errors.Is(err, ErrInvalidData))
	assert.True(t, errors.Is(err, market.ErrUnordered))
}

func TestStrategyError(t *testing.T) {
	ser := wave(10)

	s := &scripted{errAt: 3}
	res, err := NewEngine(testConfig()).Run(context.Background(), ser, factoryOf(s), nil)
	assert.Nil(t, res)

	var se *StrategyError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Bar)
	assert.Equal(t, ser.At(3).Time, se.Time)
	assert.Equal(t, "scripted", se.Strategy)
	assert.ErrorContains(t, errors.Unwrap(err), "indicator blew up")

	p := &scripted{panicAt: 2}
	_, err = NewEngine(testConfig()).Run(context.Background(), ser, factoryOf(p), nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Bar)
	assert.ErrorContains(t, err, "panic")
}

func TestInsufficientFundsIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCash = decimal.NewFromInt(50)
	res, err := NewEngine(cfg).Run(context.Background(), wave(10), mustFactory(t, "buy_hold"), nil)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, broker.ErrInsufficientFunds))
}

func TestWindowNeverLooksAhead(t *testing.T) {
	ser := wave(25)
	s := &scripted{actions: map[int]broker.Action{2: broker.Buy, 9: broker.Sell}}
	res, err := NewEngine(testConfig()).Run(context.Background(), ser, factoryOf(s), nil)
	require.NoError(t, err)

	require.Len(t, s.windows, ser.Len())
	for i, n := range s.windows {
		assert.Equal(t, i+1, n)
	}

	// the state shown on the signal bar is still flat; the fill lands next bar
	assert.True(t, s.states[2].Flat())
	assert.False(t, s.states[3].Flat())
	assert.Equal(t, ser.At(3).Time, res.Fills[0].Time)
	assert.True(t, res.Fills[0].Price.Equal(decimal.NewFromFloat(ser.At(3).Open)))
}

func TestTruncatedSeriesSameDecisions(t *testing.T) {
	ser := wave(120)
	p := strategies.Params{"rsi_period": 5, "rsi_oversold": 35, "rsi_overbought": 65}
	eng := NewEngine(testConfig())

	full, err := eng.Run(context.Background(), ser, mustFactory(t, "rsi"), p)
	require.NoError(t, err)

	cut := 70
	part, err := eng.Run(context.Background(), market.NewSeries("TEST", ser.Bars()[:cut+1]), mustFactory(t, "rsi"), p)
	require.NoError(t, err)

	var want []broker.Fill
	for _, f := range full.Fills {
		if !f.Time.After(ser.At(cut).Time) && f.Reason != EndOfDataReason {
			want = append(want, f)
		}
	}
	var got []broker.Fill
	for _, f := range part.Fills {
		if f.Reason != EndOfDataReason {
			got = append(got, f)
		}
	}
	require.NotEmpty(t, want)
	assert.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Time, got[i].Time)
		assert.Equal(t, want[i].Action, got[i].Action)
		assert.True(t, want[i].Price.Equal(got[i].Price))
	}
	for i := 0; i < cut; i++ {
		assert.True(t, full.Equity[i].Equity.Equal(part.Equity[i].Equity), "bar %d", i)
	}
}

func TestFinalBarIntentDiscarded(t *testing.T) {
	ser := wave(6)
	lg := &recordLogger{}
	cfg := testConfig()
	cfg.Logger = lg

	s := &scripted{actions: map[int]broker.Action{5: broker.Buy}}
	res, err := NewEngine(cfg).Run(context.Background(), ser, factoryOf(s), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Fills)
	assert.Empty(t, res.Trades)
	assert.Contains(t, lg.msgs, "intent on final bar discarded")
}

func TestForcedCloseIsLogged(t *testing.T) {
	lg := &recordLogger{}
	cfg := testConfig()
	cfg.Logger = lg

	_, err := NewEngine(cfg).Run(context.Background(), wave(10), mustFactory(t, "buy_hold"), nil)
	require.NoError(t, err)
	assert.Contains(t, lg.msgs, "backtest start")
	assert.Contains(t, lg.msgs, "closed open position at end of data")
	assert.Contains(t, lg.msgs, "backtest done")
}

func TestCancellation(t *testing.T) {
	ser := wave(50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewEngine(testConfig()).Run(ctx, ser, mustFactory(t, "noop"), nil)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	s := &scripted{onBar: func(i int) {
		if i == 10 {
			cancel()
		}
	}}
	res, err = NewEngine(testConfig()).Run(ctx, ser, factoryOf(s), nil)
	assert.Nil(t, res)
	assert.Equal(t, context.Canceled, err)
	assert.Len(t, s.windows, 11)
}

func TestSummaryAndReport(t *testing.T) {
	res, err := NewEngine(testConfig()).Run(context.Background(), wave(60), mustFactory(t, "sma"),
		strategies.Params{"short_period": 3, "long_period": 8})
	require.NoError(t, err)

	sum := res.Summary()
	assert.Equal(t, "sma(3,8)", sum.Strategy)
	assert.Equal(t, "long_period=8 short_period=3", sum.Params)
	assert.Equal(t, res.Metrics.TotalTrades, sum.TotalTrades)
	assert.True(t, sum.FinalValue.Equal(res.FinalCash))

	var buf bytes.Buffer
	PrintResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Backtest Result")
	assert.Contains(t, out, "Strategy:      sma(3,8)")
	assert.Contains(t, out, "Max Drawdown:")

	buf.Reset()
	require.NoError(t, PrintTrades(&buf, res))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(res.Trades)+1)
}

func TestFormatProfitFactor(t *testing.T) {
	assert.Equal(t, "n/a", FormatProfitFactor(0, 0))
	assert.Equal(t, "inf", FormatProfitFactor(math.Inf(1), 3))
	assert.Equal(t, "1.50", FormatProfitFactor(1.5, 3))
}
