package strategies

import (
	"fmt"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/indicators"
	"github.com/rustyeddy/barsim/market"
)

func init() {
	Register(Info{
		Name:        "momentum",
		Description: "buy when the trailing return exceeds the threshold, sell when it drops below the exit threshold",
		Defaults:    Params{"period": 10, "momentum_threshold": 0.02, "exit_threshold": -0.02, "stop_loss": 0, "take_profit": 0},
	}, NewMomentum, "mom")
}

// Momentum follows trailing returns over a lookback period.
type Momentum struct {
	period    int
	threshold float64
	exit      float64
	exits

	roc *indicators.ROC

	cur   cursor
	close float64
}

// NewMomentum reads period, momentum_threshold and exit_threshold. The exit
// threshold defaults to the negated entry threshold.
func NewMomentum(p Params) (Strategy, error) {
	if err := p.only("period", "momentum_threshold", "exit_threshold", "stop_loss", "take_profit"); err != nil {
		return nil, err
	}
	period, err := positiveInt(p, "period", 10)
	if err != nil {
		return nil, err
	}
	th := p.Float("momentum_threshold", 0.02)
	if th <= 0 {
		return nil, fmt.Errorf("%w: momentum_threshold must be positive, got %v", ErrInvalidParams, th)
	}
	exit := p.Float("exit_threshold", -th)
	if exit > 0 {
		return nil, fmt.Errorf("%w: exit_threshold must not be positive, got %v", ErrInvalidParams, exit)
	}
	x, err := newExits(p)
	if err != nil {
		return nil, err
	}
	s := &Momentum{period: period, threshold: th, exit: exit, exits: x}
	s.reset()
	return s, nil
}

func (s *Momentum) Name() string {
	return fmt.Sprintf("momentum(%d,%g)", s.period, s.threshold)
}

func (s *Momentum) reset() {
	s.roc = indicators.NewROC(s.period)
	s.close = 0
}

func (s *Momentum) step(b market.Bar) {
	s.roc.Update(b)
	s.close = b.Close
}

func (s *Momentum) OnBar(w market.Series, st broker.PortfolioState) (broker.Intent, error) {
	s.cur.sync(w, s.reset, s.step)
	if w.Len() == 0 {
		return broker.HoldIntent, nil
	}
	if in, ok := s.check(s.close, st); ok {
		return in, nil
	}
	if !s.roc.Ready() {
		return broker.HoldIntent, nil
	}

	r := s.roc.Value()
	switch {
	case st.Flat() && r > s.threshold:
		return broker.BuyIntent(fmt.Sprintf("momentum %.2f%%", r*100)), nil
	case !st.Flat() && r < s.exit:
		return broker.SellIntent(fmt.Sprintf("momentum %.2f%%", r*100)), nil
	}
	return broker.HoldIntent, nil
}
