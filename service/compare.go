package service

import (
	"context"
	"math"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/market/data"
	"github.com/rustyeddy/barsim/strategies"
)

// Entry is one strategy's outcome in a comparison. Exactly one of Report and
// Err is set.
type Entry struct {
	Name   string  `json:"name"`
	Report *Report `json:"report,omitempty"`
	Err    error   `json:"-"`
	Error  string  `json:"error,omitempty"`
}

// Comparison ranks strategies run over the same bars.
type Comparison struct {
	Symbol  string  `json:"symbol"`
	Bars    int     `json:"bars"`
	Entries []Entry `json:"entries"`
	// Best is the entry name with the highest total return; empty when
	// every entry failed.
	Best       string  `json:"best"`
	BestReturn float64 `json:"best_return"`
}

// Compare runs each named strategy with its params (which may be nil) over
// one load of src. A strategy that fails is reported in its entry; only a
// data or cancellation error fails the whole call.
func (s *Service) Compare(ctx context.Context, src data.Source, names []string, params map[string]strategies.Params) (*Comparison, error) {
	ser, err := s.load(ctx, src)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{Symbol: ser.Symbol, Bars: ser.Len(), Entries: make([]Entry, len(names))}
	var (
		jobs  []backtest.Job
		slots []int
		canon []string
	)
	for i, name := range names {
		cmp.Entries[i].Name = name
		f, c, err := resolve(name)
		if err != nil {
			cmp.Entries[i].Err = err
			continue
		}
		jobs = append(jobs, backtest.Job{Name: name, Factory: f, Params: params[name]})
		slots = append(slots, i)
		canon = append(canon, c)
	}

	outs, err := s.engine.RunAll(ctx, ser, jobs, s.workers)
	if err != nil {
		return nil, err
	}

	best := math.Inf(-1)
	for k, o := range outs {
		e := &cmp.Entries[slots[k]]
		s.observe(canon[k], o.Took, o.Result, o.Err)
		if o.Err != nil {
			e.Err = o.Err
			continue
		}
		e.Report = s.report(ser, o.Result)
		if err := s.save(ctx, e.Report); err != nil {
			e.Err = err
			continue
		}
		if r := o.Result.Metrics.TotalReturn; r > best {
			best = r
			cmp.Best = e.Name
			cmp.BestReturn = r
		}
	}
	for i := range cmp.Entries {
		if err := cmp.Entries[i].Err; err != nil {
			cmp.Entries[i].Error = err.Error()
			s.log.Info("compare entry failed", "strategy", cmp.Entries[i].Name, "err", err)
		}
	}
	return cmp, nil
}
