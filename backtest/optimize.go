package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/performance"
	"github.com/rustyeddy/barsim/strategies"
)

// Objective names the metric a grid search maximizes.
type Objective string

const (
	ObjectiveTotalReturn  Objective = "total_return"
	ObjectiveSharpe       Objective = "sharpe"
	ObjectiveWinRate      Objective = "win_rate"
	ObjectiveProfitFactor Objective = "profit_factor"
	// ObjectiveMaxDrawdown is minimized.
	ObjectiveMaxDrawdown Objective = "max_drawdown"
)

func ParseObjective(s string) (Objective, error) {
	o := Objective(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch o {
	case ObjectiveTotalReturn, ObjectiveSharpe, ObjectiveWinRate, ObjectiveProfitFactor, ObjectiveMaxDrawdown:
		return o, nil
	case "return":
		return ObjectiveTotalReturn, nil
	case "drawdown":
		return ObjectiveMaxDrawdown, nil
	}
	return "", fmt.Errorf("unknown objective %q", s)
}

// Score returns a value where higher is always better.
func (o Objective) Score(r performance.Report) float64 {
	switch o {
	case ObjectiveSharpe:
		return r.Sharpe
	case ObjectiveWinRate:
		return r.WinRate
	case ObjectiveProfitFactor:
		return r.ProfitFactor
	case ObjectiveMaxDrawdown:
		return -r.MaxDrawdown
	default:
		return r.TotalReturn
	}
}

// Grid maps a parameter name to the values to try.
type Grid map[string][]float64

// Combinations expands the grid over base. Keys are walked in sorted order
// with the last key varying fastest, so the order is stable.
func (g Grid) Combinations(base strategies.Params) ([]strategies.Params, error) {
	keys := make([]string, 0, len(g))
	for k, vals := range g {
		if len(vals) == 0 {
			return nil, fmt.Errorf("%w: no values for %q", ErrInvalidConfig, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []strategies.Params{base.Clone()}
	for _, k := range keys {
		next := make([]strategies.Params, 0, len(combos)*len(g[k]))
		for _, c := range combos {
			for _, v := range g[k] {
				p := c.Clone()
				p[k] = v
				next = append(next, p)
			}
		}
		combos = next
	}
	return combos, nil
}

// Size is the number of combinations in the grid.
func (g Grid) Size() int {
	n := 1
	for _, vals := range g {
		n *= len(vals)
	}
	return n
}

// Trial is one evaluated grid point.
type Trial struct {
	Params strategies.Params
	Result *Result
	Score  float64
	Err    error
	Took   time.Duration
}

// OptimizeResult holds every trial in grid order.
type OptimizeResult struct {
	Objective Objective
	Trials    []Trial
	// Skipped counts combinations the strategy rejected as invalid.
	Skipped int
	Best    *Trial
}

// Ranked returns the successful trials, best first. Ties keep grid order.
func (o *OptimizeResult) Ranked() []Trial {
	out := make([]Trial, 0, len(o.Trials))
	for _, t := range o.Trials {
		if t.Err == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Optimize runs every combination of grid over base and picks the best by
// objective. Combinations the factory rejects (for example short_period >=
// long_period) are skipped.
func (e *Engine) Optimize(ctx context.Context, series market.Series, factory strategies.Factory,
	base strategies.Params, grid Grid, obj Objective, workers int) (*OptimizeResult, error) {

	if err := e.check(series); err != nil {
		return nil, err
	}
	obj, err := ParseObjective(string(obj))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	combos, err := grid.Combinations(base)
	if err != nil {
		return nil, err
	}

	jobs := make([]Job, len(combos))
	for i, p := range combos {
		jobs[i] = Job{Name: p.String(), Factory: factory, Params: p}
	}
	outs, err := e.RunAll(ctx, series, jobs, workers)
	if err != nil {
		return nil, err
	}

	res := &OptimizeResult{Objective: obj}
	for _, o := range outs {
		if errors.Is(o.Err, ErrInvalidConfig) {
			res.Skipped++
			continue
		}
		t := Trial{Params: o.Job.Params, Result: o.Result, Err: o.Err, Took: o.Took}
		if o.Err == nil {
			t.Score = obj.Score(o.Result.Metrics)
		}
		res.Trials = append(res.Trials, t)
	}

	for i := range res.Trials {
		t := &res.Trials[i]
		if t.Err != nil || math.IsNaN(t.Score) {
			continue
		}
		if res.Best == nil || t.Score > res.Best.Score {
			res.Best = t
		}
	}
	if res.Best == nil {
		return res, fmt.Errorf("no valid parameter combination among %d", len(combos))
	}
	return res, nil
}
