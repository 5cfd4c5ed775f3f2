package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func daily(closes ...float64) []Bar {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Time:   t0.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c * 0.9,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestSeries_Window(t *testing.T) {
	s := NewSeries("TEST", daily(10, 11, 12, 13, 14))

	w := s.Window(2)
	require.Equal(t, 3, w.Len())
	assert.Equal(t, 12.0, w.Last().Close)
	assert.Equal(t, []float64{10, 11, 12}, w.Closes())

	assert.Equal(t, 0, s.Window(-1).Len())
	assert.Equal(t, 5, s.Window(99).Len())
}

func TestSeries_NewSeriesCopies(t *testing.T) {
	bars := daily(1, 2, 3)
	s := NewSeries("TEST", bars)
	bars[0].Close = 999

	assert.Equal(t, 1.0, s.First().Close)

	out := s.Bars()
	out[1].Close = 999
	assert.Equal(t, 2.0, s.At(1).Close)
}

func TestSeries_Validate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, NewSeries("OK", daily(1, 2, 3)).Validate())
	})

	t.Run("duplicate timestamp", func(t *testing.T) {
		bars := daily(1, 2, 3)
		bars[2].Time = bars[1].Time
		err := NewSeries("DUP", bars).Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnordered)
	})

	t.Run("out of order", func(t *testing.T) {
		bars := daily(1, 2, 3)
		bars[1].Time, bars[2].Time = bars[2].Time, bars[1].Time
		err := NewSeries("SWAP", bars).Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnordered)
		assert.Contains(t, err.Error(), "index 2")
	})

	t.Run("non-positive low", func(t *testing.T) {
		bars := daily(1, 2)
		bars[0].Low = 0
		err := NewSeries("ZERO", bars).Validate()
		assert.ErrorIs(t, err, ErrBadBar)
		assert.NotErrorIs(t, err, ErrUnordered)
	})

	t.Run("high below close", func(t *testing.T) {
		bars := daily(5, 6)
		bars[1].High = 5.5
		err := NewSeries("BAD", bars).Validate()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBadBar)
		assert.Contains(t, err.Error(), "index 1")
	})

	t.Run("low above open", func(t *testing.T) {
		bars := daily(5)
		bars[0].Low = 5.1
		assert.ErrorIs(t, NewSeries("BAD", bars).Validate(), ErrBadBar)
	})
}

func TestSeries_Between(t *testing.T) {
	s := NewSeries("TEST", daily(1, 2, 3, 4, 5))

	got := s.Between(t0.AddDate(0, 0, 1), t0.AddDate(0, 0, 4))
	assert.Equal(t, []float64{2, 3, 4}, got.Closes())

	assert.Equal(t, 5, s.Between(time.Time{}, time.Time{}).Len())
}

func TestIterator(t *testing.T) {
	s := NewSeries("TEST", daily(1, 2, 3))
	it := s.Iterator()

	var seen []float64
	for it.Next() {
		seen = append(seen, it.Bar().Close)
		assert.Equal(t, len(seen)-1, it.Index())
	}
	assert.Equal(t, []float64{1, 2, 3}, seen)
}

func TestIntervalAndBarsPerYear(t *testing.T) {
	s := NewSeries("TEST", daily(1, 2, 3, 4))
	assert.Equal(t, 24*time.Hour, s.Interval())
	assert.Equal(t, time.Duration(0), NewSeries("ONE", daily(1)).Interval())

	tests := []struct {
		d    time.Duration
		want float64
	}{
		{0, 252},
		{24 * time.Hour, 252},
		{7 * 24 * time.Hour, 52},
		{30 * 24 * time.Hour, 12},
		{time.Hour, 252 * 24},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BarsPerYear(tt.d), tt.d.String())
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1m", time.Minute, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"1M", 30 * 24 * time.Hour, false},
		{"", 0, true},
		{"xd", 0, true},
		{"-1h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
