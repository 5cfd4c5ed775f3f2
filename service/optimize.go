package service

import (
	"context"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/market/data"
	"github.com/rustyeddy/barsim/strategies"
)

// OptimizeRequest describes a grid search for one strategy.
type OptimizeRequest struct {
	Source    data.Source
	Strategy  string
	Base      strategies.Params
	Grid      backtest.Grid
	Objective backtest.Objective
}

// Optimization is the grid search outcome plus a report for the best
// combination. Only the best run is journaled.
type Optimization struct {
	*backtest.OptimizeResult
	BestReport *Report
}

func (s *Service) Optimize(ctx context.Context, req OptimizeRequest) (*Optimization, error) {
	factory, canon, err := resolve(req.Strategy)
	if err != nil {
		return nil, err
	}
	ser, err := s.load(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	s.log.Info("optimize start", "strategy", canon, "combinations", req.Grid.Size(), "objective", string(req.Objective))
	res, err := s.engine.Optimize(ctx, ser, factory, req.Base, req.Grid, req.Objective, s.workers)
	if res == nil {
		return nil, err
	}
	for _, t := range res.Trials {
		s.observe(canon, t.Took, t.Result, t.Err)
	}

	out := &Optimization{OptimizeResult: res}
	if err != nil {
		return out, err
	}
	out.BestReport = s.report(ser, res.Best.Result)
	if err := s.save(ctx, out.BestReport); err != nil {
		return out, err
	}
	return out, nil
}
