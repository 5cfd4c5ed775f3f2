package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TradingDaysPerYear is the calendar used to annualize daily-or-longer bars.
const TradingDaysPerYear = 252

// Interval returns the median spacing between consecutive bars, or 0 when
// the series has fewer than two bars. The median ignores weekend gaps.
func (s Series) Interval() time.Duration {
	if len(s.bars) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(s.bars)-1)
	for i := 1; i < len(s.bars); i++ {
		gaps = append(gaps, s.bars[i].Time.Sub(s.bars[i-1].Time))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
	return gaps[len(gaps)/2]
}

// BarsPerYear converts a bar interval into the number of bars in one year.
// Daily bars use the trading calendar; weekly and monthly bars scale from it.
// Intraday bars assume the market is open around the clock on trading days.
func BarsPerYear(d time.Duration) float64 {
	const day = 24 * time.Hour
	switch {
	case d <= 0:
		return TradingDaysPerYear
	case d >= 28*day:
		return 12
	case d >= 7*day:
		return 52
	case d >= day:
		return TradingDaysPerYear
	default:
		return TradingDaysPerYear * float64(day) / float64(d)
	}
}

// ParseInterval understands the exchange-style shorthands (1m, 15m, 1h, 4h,
// 1d, 1w, 1M) as well as anything time.ParseDuration accepts.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty interval")
	}
	switch s[len(s)-1] {
	case 'd', 'w', 'M':
		var n int
		if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &n); err != nil || n <= 0 {
			return 0, fmt.Errorf("bad interval %q", s)
		}
		unit := 24 * time.Hour
		switch s[len(s)-1] {
		case 'w':
			unit *= 7
		case 'M':
			unit *= 30
		}
		return time.Duration(n) * unit, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad interval %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("bad interval %q", s)
	}
	return d, nil
}
