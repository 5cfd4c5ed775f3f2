package indicators

import (
	"fmt"

	"github.com/rustyeddy/barsim/market"
)

// RSI is the Relative Strength Index with Wilder's smoothing.
//
// The first period close-to-close changes seed the average gain and loss
// with a simple mean; after that each average is smoothed as
// avg = (avg*(period-1) + change) / period. Ready after period+1 bars.
type RSI struct {
	period int

	prevClose float64
	havePrev  bool
	changes   int

	sumGain float64
	sumLoss float64
	avgGain float64
	avgLoss float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int {
	return r.period + 1
}

func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

func (r *RSI) Update(b market.Bar) {
	if !r.havePrev {
		r.prevClose = b.Close
		r.havePrev = true
		return
	}

	change := b.Close - r.prevClose
	r.prevClose = b.Close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	r.changes++
	n := float64(r.period)
	switch {
	case r.changes < r.period:
		r.sumGain += gain
		r.sumLoss += loss
	case r.changes == r.period:
		r.sumGain += gain
		r.sumLoss += loss
		r.avgGain = r.sumGain / n
		r.avgLoss = r.sumLoss / n
	default:
		r.avgGain = (r.avgGain*(n-1) + gain) / n
		r.avgLoss = (r.avgLoss*(n-1) + loss) / n
	}
}

func (r *RSI) Ready() bool {
	return r.period > 0 && r.changes >= r.period
}

// Value returns RSI in [0, 100]. A window with no losses reads 100, and a
// window with no movement at all reads 50.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
