package strategies

import (
	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{Name: "noop", Description: "never trades", Defaults: Params{}},
		func(p Params) (Strategy, error) { return Noop{}, nil }, "none")
}

// Noop does nothing.
type Noop struct{}

func (Noop) Name() string {
	return "noop"
}

func (Noop) OnBar(market.Series, broker.PortfolioState) (broker.Intent, error) {
	return broker.HoldIntent, nil
}
