package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newSim(t *testing.T, cash, rate string, sz Sizing) *Simulator {
	t.Helper()
	s, err := NewSimulator(dec(cash), dec(rate), sz)
	require.NoError(t, err)
	return s
}

// conserved checks Cash + PositionSize*AvgPrice + Commission == InitialCash + RealizedPnL.
func conserved(t *testing.T, s *Simulator) {
	t.Helper()
	st := s.State()
	lhs := st.Cash.Add(st.PositionSize.Mul(st.AvgPrice)).Add(st.Commission)
	rhs := s.InitialCash().Add(st.RealizedPnL)
	assert.True(t, lhs.Equal(rhs), "conservation broken: %s != %s", lhs, rhs)
}

func TestNewSimulatorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewSimulator(decimal.Zero, decimal.Zero, PercentOfEquity(1))
	assert.ErrorContains(t, err, "initial cash")

	_, err = NewSimulator(dec("100"), dec("-0.01"), PercentOfEquity(1))
	assert.ErrorContains(t, err, "commission rate")

	_, err = NewSimulator(dec("100"), dec("0"), PercentOfEquity(1.5))
	assert.ErrorContains(t, err, "percent")

	_, err = NewSimulator(dec("100"), dec("0"), Sizing{Mode: "bogus"})
	assert.ErrorContains(t, err, "unknown mode")
}

func TestRoundTripWithCommission(t *testing.T) {
	t.Parallel()
	s := newSim(t, "10000", "0.001", PercentOfEquity(1))

	fill, err := s.Apply(BuyIntent("entry"), 100, t0)
	require.NoError(t, err)
	require.True(t, fill.Executed)
	assert.Equal(t, Buy, fill.Action)
	assert.True(t, fill.Size.Equal(dec("99")), "size %s", fill.Size)
	assert.True(t, fill.Commission.Equal(dec("9.9")))

	st := s.State()
	assert.True(t, st.Cash.Equal(dec("90.1")), "cash %s", st.Cash)
	assert.False(t, st.Flat())
	assert.Equal(t, t0, st.EntryTime)
	conserved(t, s)

	s.Mark(105)
	assert.True(t, s.State().UnrealizedPnL.Equal(dec("495")))
	conserved(t, s)

	t1 := t0.AddDate(0, 0, 3)
	fill, err = s.Apply(SellIntent("exit"), 110, t1)
	require.NoError(t, err)
	require.True(t, fill.Executed)
	require.NotNil(t, fill.Trade)

	tr := fill.Trade
	assert.Equal(t, 1, tr.Seq)
	assert.True(t, tr.GrossPnL.Equal(dec("990")))
	assert.True(t, tr.Commission.Equal(dec("20.79")))
	assert.True(t, tr.NetPnL.Equal(dec("969.21")))
	assert.Equal(t, 72*time.Hour, tr.Duration())
	assert.InDelta(t, 969.21/9900, tr.ReturnPct(), 1e-12)

	st = s.State()
	assert.True(t, st.Flat())
	assert.True(t, st.Cash.Equal(dec("10969.21")), "cash %s", st.Cash)
	assert.True(t, st.RealizedPnL.Equal(dec("990")))
	assert.True(t, st.UnrealizedPnL.IsZero())
	conserved(t, s)

	require.Len(t, s.Trades(), 1)
}

func TestNoOps(t *testing.T) {
	t.Parallel()
	s := newSim(t, "1000", "0", PercentOfEquity(1))

	t.Run("sell while flat", func(t *testing.T) {
		fill, err := s.Apply(SellIntent("x"), 10, t0)
		require.NoError(t, err)
		assert.False(t, fill.Executed)
		assert.True(t, s.State().Cash.Equal(dec("1000")))
	})

	t.Run("hold", func(t *testing.T) {
		fill, err := s.Apply(HoldIntent, 10, t0)
		require.NoError(t, err)
		assert.False(t, fill.Executed)
		assert.Equal(t, Hold, fill.Action)
	})

	t.Run("buy while long", func(t *testing.T) {
		_, err := s.Apply(BuyIntent("first"), 10, t0)
		require.NoError(t, err)
		before := s.State()

		fill, err := s.Apply(BuyIntent("second"), 5, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.False(t, fill.Executed)
		assert.Equal(t, before.PositionSize, s.State().PositionSize)
		assert.Equal(t, before.Cash, s.State().Cash)
	})

	t.Run("close when flat", func(t *testing.T) {
		s2 := newSim(t, "1000", "0", PercentOfEquity(1))
		fill := s2.Close(10, t0, "end")
		assert.False(t, fill.Executed)
		assert.Empty(t, s2.Trades())
	})
}

func TestSizing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cash   string
		sizing Sizing
		intent Intent
		price  float64
		want   string
	}{
		{"percent floors to whole units", "1000", PercentOfEquity(0.5), BuyIntent(""), 30, "16"},
		{"units clamped to cash", "500", FixedUnits(10), BuyIntent(""), 100, "5"},
		{"tiny target rounds up to one lot", "1000", PercentOfEquity(0.01), BuyIntent(""), 100, "1"},
		{"intent size overrides policy", "1000", PercentOfEquity(1), Intent{Action: Buy, Size: dec("3")}, 100, "3"},
		{"lot size", "10000", Sizing{Mode: SizePercent, Percent: dec("0.55"), LotSize: dec("10")}, BuyIntent(""), 100, "50"},
		{"fractional lot", "100", Sizing{Mode: SizePercent, Percent: dec("1"), LotSize: dec("0.1")}, BuyIntent(""), 30, "3.3"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newSim(t, tt.cash, "0", tt.sizing)
			fill, err := s.Apply(tt.intent, tt.price, t0)
			require.NoError(t, err)
			assert.True(t, fill.Size.Equal(dec(tt.want)), "got %s want %s", fill.Size, tt.want)
			assert.False(t, s.State().Cash.IsNegative())
			conserved(t, s)
		})
	}
}

func TestInsufficientFunds(t *testing.T) {
	t.Parallel()
	s := newSim(t, "50", "0.01", PercentOfEquity(1))

	_, err := s.Apply(BuyIntent("entry"), 100, t0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	var ife *InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.True(t, ife.Cash.Equal(dec("50")))
	assert.True(t, ife.MinUnits.Equal(dec("1")))

	assert.True(t, s.State().Flat())
	assert.True(t, s.State().Cash.Equal(dec("50")))
}

func TestCommissionCanExhaustCash(t *testing.T) {
	t.Parallel()
	// 100 units cost exactly 10000 but commission pushes it over
	s := newSim(t, "10000", "0.01", FixedUnits(100))

	fill, err := s.Apply(BuyIntent(""), 100, t0)
	require.NoError(t, err)
	assert.True(t, fill.Size.Equal(dec("99")))
	assert.False(t, s.State().Cash.IsNegative())
	conserved(t, s)
}

func TestForcedCloseAndSequence(t *testing.T) {
	t.Parallel()
	s := newSim(t, "1000", "0", FixedUnits(1))

	for i := 0; i < 3; i++ {
		at := t0.AddDate(0, 0, 2*i)
		_, err := s.Apply(BuyIntent(""), 10, at)
		require.NoError(t, err)
		if i < 2 {
			_, err = s.Apply(SellIntent("signal"), 12, at.AddDate(0, 0, 1))
			require.NoError(t, err)
		}
	}

	fill := s.Close(8, t0.AddDate(0, 0, 10), "end of data")
	require.True(t, fill.Executed)

	trades := s.Trades()
	require.Len(t, trades, 3)
	for i, tr := range trades {
		assert.Equal(t, i+1, tr.Seq)
	}
	assert.Equal(t, "end of data", trades[2].Reason)
	assert.True(t, trades[2].NetPnL.Equal(dec("-2")))
	assert.True(t, s.State().RealizedPnL.Equal(dec("2")))
	conserved(t, s)

	// the returned slice is a copy
	trades[0].Seq = 99
	assert.Equal(t, 1, s.Trades()[0].Seq)
}

func TestParseSizingMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]SizingMode{
		"percent": SizePercent,
		" PCT ":   SizePercent,
		"equity":  SizePercent,
		"units":   SizeUnits,
		"Fixed":   SizeUnits,
	} {
		got, err := ParseSizingMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSizingMode("kelly")
	assert.Error(t, err)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "BUY", Buy.String())
	assert.Equal(t, "SELL", Sell.String())
	assert.Equal(t, "HOLD", Hold.String())
}
