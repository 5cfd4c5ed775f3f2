package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "rsi",
		Description: "buy when RSI recovers above oversold, sell when it falls back below overbought",
		Defaults:    Params{"rsi_period": 14, "rsi_oversold": 30, "rsi_overbought": 70, "stop_loss": 0, "take_profit": 0},
	}, NewRSIReversal, "rsi_reversal")
}

// RSIReversal buys confirmed recoveries out of oversold territory and sells
// when RSI turns down out of overbought territory.
type RSIReversal struct {
	period     int
	oversold   float64
	overbought float64
	exits

	rsi *indicators.RSI

	cur     cursor
	val     float64
	prev    float64
	have    int
	lastBar market.Bar
}

func NewRSIReversal(p Params) (Strategy, error) {
	if err := p.only("rsi_period", "rsi_oversold", "rsi_overbought", "stop_loss", "take_profit"); err != nil {
		return nil, err
	}
	period, err := positiveInt(p, "rsi_period", 14)
	if err != nil {
		return nil, err
	}
	lo := p.Float("rsi_oversold", 30)
	hi := p.Float("rsi_overbought", 70)
	if lo <= 0 || hi >= 100 || lo >= hi {
		return nil, fmt.Errorf("%w: need 0 < rsi_oversold < rsi_overbought < 100, got %v and %v",
			ErrInvalidParams, lo, hi)
	}
	x, err := newExits(p)
	if err != nil {
		return nil, err
	}
	s := &RSIReversal{period: period, oversold: lo, overbought: hi, exits: x}
	s.reset()
	return s, nil
}

func (s *RSIReversal) Name() string {
	return fmt.Sprintf("rsi(%d,%g,%g)", s.period, s.oversold, s.overbought)
}

func (s *RSIReversal) reset() {
	s.rsi = indicators.NewRSI(s.period)
	s.val, s.prev, s.have = 0, 0, 0
}

func (s *RSIReversal) step(b market.Bar) {
	s.lastBar = b
	s.rsi.Update(b)
	if !s.rsi.Ready() {
		return
	}
	s.prev = s.val
	s.val = s.rsi.Value()
	if s.have < 2 {
		s.have++
	}
}

func (s *RSIReversal) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
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
	case s.prev < s.oversold && s.val >= s.oversold:
		return broker.BuyIntent(fmt.Sprintf("rsi %.1f recovered above %g", s.val, s.oversold)), nil
	case s.prev >= s.overbought && s.val < s.overbought:
		return broker.SellIntent(fmt.Sprintf("rsi %.1f fell below %g", s.val, s.overbought)), nil
	}
	return broker.HoldIntent, nil
}
