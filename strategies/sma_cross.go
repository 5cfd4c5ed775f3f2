package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "sma",
		Description: "buy when the short SMA crosses above the long SMA, sell on the inverse cross",
		Defaults:    Params{"short_period": 10, "long_period": 30, "stop_loss": 0, "take_profit": 0},
	}, NewSMACross, "sma_cross", "smacross")
}

// SMACross trades crossovers of a short and a long simple moving average.
type SMACross struct {
	shortPeriod int
	longPeriod  int
	exits

	short *indicators.SimpleMA
	long  *indicators.SimpleMA

	cur     cursor
	diff    float64
	prev    float64
	have    int // number of diffs computed, capped at 2
	lastBar market.Bar
}

func NewSMACross(p Params) (Strategy, error) {
	if err := p.only("short_period", "long_period", "stop_loss", "take_profit"); err != nil {
		return nil, err
	}
	short, err := positiveInt(p, "short_period", 10)
	if err != nil {
		return nil, err
	}
	long, err := positiveInt(p, "long_period", 30)
	if err != nil {
		return nil, err
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short_period (%d) must be less than long_period (%d)",
			ErrInvalidParams, short, long)
	}
	x, err := newExits(p)
	if err != nil {
		return nil, err
	}
	s := &SMACross{shortPeriod: short, longPeriod: long, exits: x}
	s.reset()
	return s, nil
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma(%d,%d)", s.shortPeriod, s.longPeriod)
}

func (s *SMACross) reset() {
	s.short = indicators.NewSMA(s.shortPeriod)
	s.long = indicators.NewSMA(s.longPeriod)
	s.diff, s.prev, s.have = 0, 0, 0
}

func (s *SMACross) step(b market.Bar) {
	s.lastBar = b
	s.short.Update(b)
	s.long.Update(b)
	if !s.long.Ready() {
		return
	}
	s.prev = s.diff
	s.diff = s.short.Value() - s.long.Value()
	if s.have < 2 {
		s.have++
	}
}

func (s *SMACross) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	s.cur.sync(w, s.reset, s.step)
	if w.Len() == 0 {
		return broker.HoldIntent, nil
	}
	if in, ok := s.check(s.lastBar.Close, st); ok {
		return in, nil
	}
	if s.have < 2 {
		return broker.HoldIntent, nil
	}
	switch {
	case s.prev <= 0 && s.diff > 0:
		return broker.BuyIntent("sma cross up"), nil
	case s.prev >= 0 && s.diff < 0:
		return broker.SellIntent("sma cross down"), nil
	}
	return broker.HoldIntent, nil
}
