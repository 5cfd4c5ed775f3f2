package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "bollinger",
		Description: "buy when close crosses below the lower band, sell when it crosses above the upper band",
		Defaults:    Params{"period": 20, "devfactor": 2, "stop_loss": 0, "take_profit": 0},
	}, NewBollingerBands, "bb", "bbands")
}

type band struct {
	close, lower, upper float64
}

// BollingerBands fades moves outside the bands.
type BollingerBands struct {
	period    int
	devfactor float64
	exits

	bb *indicators.Bollinger

	cur  cursor
	last float64
	now  band
	prev band
	have int
}

func NewBollingerBands(p Params) (Strategy, error) {
	if err := p.only("period", "devfactor", "stop_loss", "take_profit"); err != nil {
		return nil, err
	}
	period, err := positiveInt(p, "period", 20)
	if err != nil {
		return nil, err
	}
	if period < 2 {
		return nil, fmt.Errorf("%w: period must be at least 2, got %d", ErrInvalidParams, period)
	}
	dev := p.Float("devfactor", 2)
	if dev <= 0 {
		return nil, fmt.Errorf("%w: devfactor must be positive, got %v", ErrInvalidParams, dev)
	}
	x, err := newExits(p)
	if err != nil {
		return nil, err
	}
	s := &BollingerBands{period: period, devfactor: dev, exits: x}
	s.reset()
	return s, nil
}

func (s *BollingerBands) Name() string {
	return fmt.Sprintf("bollinger(%d,%g)", s.period, s.devfactor)
}

func (s *BollingerBands) reset() {
	s.bb = indicators.NewBollinger(s.period, s.devfactor)
	s.last, s.now, s.prev, s.have = 0, band{}, band{}, 0
}

func (s *BollingerBands) step(b market.Bar) {
	s.bb.Update(b)
	s.last = b.Close
	if !s.bb.Ready() {
		return
	}
	lower, _, upper := s.bb.Bands()
	s.prev = s.now
	s.now = band{close: b.Close, lower: lower, upper: upper}
	if s.have < 2 {
		s.have++
	}
}

func (s *BollingerBands) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	s.cur.sync(w, s.reset, s.step)
	if w.Len() == 0 {
		return broker.HoldIntent, nil
	}
	if in, ok := s.check(s.last, st); ok {
		return in, nil
	}
	if s.have < 2 {
		return broker.HoldIntent, nil
	}
	switch {
	case s.prev.close >= s.prev.lower && s.now.close < s.now.lower:
		return broker.BuyIntent("close crossed below lower band"), nil
	case s.prev.close <= s.prev.upper && s.now.close > s.now.upper:
		return broker.SellIntent("close crossed above upper band"), nil
	}
	return broker.HoldIntent, nil
}
