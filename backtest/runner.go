package backtest

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/strategies"
)

// Job is one independent run over a shared series.
type Job struct {
	Name    string
	Factory strategies.Factory
	Params  strategies.Params
}

// Outcome pairs a job with its result or error.
type Outcome struct {
	Job    Job
	Result *Result
	Err    error
	Took   time.Duration
}

// RunAll runs every job over series with at most workers runs in flight.
// Each run gets its own simulator and strategy; the series is shared
// read-only. A failed job is reported in its Outcome and does not stop the
// others. Outcomes come back in job order. Only cancellation of ctx is
// returned as an error.
func (e *Engine) RunAll(ctx context.Context, series market.Series, jobs []Job, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	out := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			start := time.Now()
			res, err := e.Run(gctx, series, job.Factory, job.Params)
			out[i] = Outcome{Job: job, Result: res, Err: err, Took: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
