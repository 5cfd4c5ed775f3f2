package indicators

import (
	"fmt"

	"github.com/rustyeddy/barsim/market"
)

// ROC is the rate of change over a lookback: close / close[n bars ago] - 1.
type ROC struct {
	lookback int
	closes   window
}

func NewROC(lookback int) *ROC {
	return &ROC{lookback: lookback, closes: newWindow(lookback + 1)}
}

func (r *ROC) Name() string {
	return fmt.Sprintf("ROC(%d)", r.lookback)
}

func (r *ROC) Warmup() int {
	return r.lookback + 1
}

func (r *ROC) Reset() {
	r.closes.reset()
}

func (r *ROC) Update(b market.Bar) {
	r.closes.push(b.Close)
}

func (r *ROC) Ready() bool {
	return r.lookback > 0 && r.closes.full()
}

func (r *ROC) Value() float64 {
	if !r.Ready() {
		return 0
	}
	base := r.closes.vals[0]
	if base == 0 {
		return 0
	}
	return r.closes.vals[len(r.closes.vals)-1]/base - 1
}
