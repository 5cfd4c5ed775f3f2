package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
)

// exits are the protective stop-loss and take-profit levels shared by the
// signal strategies. Both are fractions of the entry price; zero disables.
type exits struct {
	stopLoss   float64
	takeProfit float64
}

func newExits(p Params) (exits, error) {
	x := exits{
		stopLoss:   p.Float("stop_loss", 0),
		takeProfit: p.Float("take_profit", 0),
	}
	if x.stopLoss < 0 || x.stopLoss >= 1 {
		return exits{}, fmt.Errorf("%w: stop_loss must be in [0, 1), got %v", ErrInvalidParams, x.stopLoss)
	}
	if x.takeProfit < 0 {
		return exits{}, fmt.Errorf("%w: take_profit must not be negative, got %v", ErrInvalidParams, x.takeProfit)
	}
	return x, nil
}

// check returns a SELL when a long position breaches either level at close.
func (x exits) check(close float64, st broker.PortfolioState) (broker.Intent, bool) {
	if st.Flat() {
		return broker.HoldIntent, false
	}
	entry := st.AvgPrice.InexactFloat64()
	if x.stopLoss > 0 && close <= entry*(1-x.stopLoss) {
		return broker.SellIntent("stop-loss"), true
	}
	if x.takeProfit > 0 && close >= entry*(1+x.takeProfit) {
		return broker.SellIntent("take-profit"), true
	}
	return broker.HoldIntent, false
}
