package strategies

import (
	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "buy_hold",
		Description: "buy on the first bar and hold until the end",
		Defaults:    Params{},
	}, NewBuyHold, "buyhold", "buy_and_hold")
}

// BuyHold buys once, on the first bar with cash available, and never sells.
// The engine's end-of-data close realizes the position.
type BuyHold struct {
	bought bool
}

func NewBuyHold(p Params) (Strategy, error) {
	if err := p.only(); err != nil {
		return nil, err
	}
	return &BuyHold{}, nil
}

func (s *BuyHold) Name() string {
	return "buy_hold"
}

func (s *BuyHold) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	if s.bought || w.Len() == 0 || !st.Flat() || !st.Cash.IsPositive() {
		return broker.HoldIntent, nil
	}
	s.bought = true
	return broker.BuyIntent("buy and hold"), nil
}
