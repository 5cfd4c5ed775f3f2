package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "mean_reversion",
		Description: "buy when close is more than threshold below its SMA, sell once it reverts to the SMA",
		Defaults:    Params{"period": 20, "threshold": 0.02, "stop_loss": 0, "take_profit": 0},
	}, NewMeanReversion, "meanreversion", "mr")
}

// MeanReversion buys dips below the moving average.
type MeanReversion struct {
	period    int
	threshold float64
	exits

	sma *indicators.SimpleMA

	cur   cursor
	close float64
	avg   float64
	ready bool
}

func NewMeanReversion(p Params) (Strategy, error) {
	if err := p.only("period", "threshold", "stop_loss", "take_profit"); err != nil {
		return nil, err
	}
	period, err := positiveInt(p, "period", 20)
	if err != nil {
		return nil, err
	}
	th := p.Float("threshold", 0.02)
	if th <= 0 || th >= 1 {
		return nil, fmt.Errorf("%w: threshold must be in (0, 1), got %v", ErrInvalidParams, th)
	}
	x, err := newExits(p)
	if err != nil {
		return nil, err
	}
	s := &MeanReversion{period: period, threshold: th, exits: x}
	s.reset()
	return s, nil
}

func (s *MeanReversion) Name() string {
	return fmt.Sprintf("mean_reversion(%d,%g)", s.period, s.threshold)
}

func (s *MeanReversion) reset() {
	s.sma = indicators.NewSMA(s.period)
	s.close, s.avg, s.ready = 0, 0, false
}

func (s *MeanReversion) step(b market.Bar) {
	s.sma.Update(b)
	s.close = b.Close
	s.ready = s.sma.Ready()
	s.avg = s.sma.Value()
}

func (s *MeanReversion) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	s.cur.sync(w, s.reset, s.step)
	if w.Len() == 0 {
		return broker.HoldIntent, nil
	}
	if in, ok := s.check(s.close, st); ok {
		return in, nil
	}
	if !s.ready || s.avg <= 0 {
		return broker.HoldIntent, nil
	}

	if st.Flat() {
		dev := (s.avg - s.close) / s.avg
		if dev > s.threshold {
			return broker.BuyIntent(fmt.Sprintf("%.2f%% below sma", dev*100)), nil
		}
		return broker.HoldIntent, nil
	}
	if s.close >= s.avg {
		return broker.SellIntent("reverted to sma"), nil
	}
	return broker.HoldIntent, nil
}
