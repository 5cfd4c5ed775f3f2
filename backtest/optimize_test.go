package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/barsim/strategies"
)

func TestRunAll(t *testing.T) {
	ser := wave(150)
	jobs := []Job{
		{Name: "sma", Factory: mustFactory(t, "sma"), Params: strategies.Params{"short_period": 5, "long_period": 20}},
		{Name: "bad", Factory: mustFactory(t, "sma"), Params: strategies.Params{"short_period": 20, "long_period": 5}},
		{Name: "hold", Factory: mustFactory(t, "buy_hold")},
		{Name: "rsi", Factory: mustFactory(t, "rsi")},
	}

	outs, err := NewEngine(testConfig()).RunAll(context.Background(), ser, jobs, 2)
	require.NoError(t, err)
	require.Len(t, outs, len(jobs))

	for i, o := range outs {
		assert.Equal(t, jobs[i].Name, o.Job.Name)
	}
	assert.NoError(t, outs[0].Err)
	assert.True(t, errors.Is(outs[1].Err, ErrInvalidConfig))
	assert.Nil(t, outs[1].Result)
	assert.NoError(t, outs[2].Err)
	assert.NoError(t, outs[3].Err)

	// concurrent runs match a sequential one
	solo, err := NewEngine(testConfig()).Run(context.Background(), ser, jobs[0].Factory, jobs[0].Params)
	require.NoError(t, err)
	assert.Equal(t, solo, outs[0].Result)
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine(testConfig()).RunAll(ctx, wave(20), []Job{{Factory: mustFactory(t, "noop")}}, 0)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGridCombinations(t *testing.T) {
	g := Grid{"short_period": {2, 3}, "long_period": {5, 8, 13}}
	assert.Equal(t, 6, g.Size())

	combos, err := g.Combinations(strategies.Params{"stop_loss": 0.05})
	require.NoError(t, err)
	require.Len(t, combos, 6)

	// sorted keys, last key fastest
	assert.Equal(t, strategies.Params{"stop_loss": 0.05, "long_period": 5, "short_period": 2}, combos[0])
	assert.Equal(t, strategies.Params{"stop_loss": 0.05, "long_period": 5, "short_period": 3}, combos[1])
	assert.Equal(t, strategies.Params{"stop_loss": 0.05, "long_period": 13, "short_period": 3}, combos[5])

	none, err := Grid{}.Combinations(nil)
	require.NoError(t, err)
	assert.Len(t, none, 1)

	_, err = Grid{"period": nil}.Combinations(nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestOptimize(t *testing.T) {
	ser := wave(200)
	eng := NewEngine(testConfig())
	grid := Grid{"short_period": {2, 5, 10}, "long_period": {5, 20}}

	res, err := eng.Optimize(context.Background(), ser, mustFactory(t, "sma"), nil, grid, ObjectiveSharpe, 3)
	require.NoError(t, err)

	// (5,5), (10,5) are rejected by the strategy
	assert.Equal(t, 2, res.Skipped)
	require.Len(t, res.Trials, 4)
	require.NotNil(t, res.Best)
	for _, tr := range res.Trials {
		require.NoError(t, tr.Err)
		assert.LessOrEqual(t, tr.Score, res.Best.Score)
		assert.Equal(t, tr.Result.Metrics.Sharpe, tr.Score)
	}

	ranked := res.Ranked()
	require.Len(t, ranked, 4)
	assert.Equal(t, res.Best.Params, ranked[0].Params)
	for i := 1; i < len(ranked); i++ {
		assert.GreaterOrEqual(t, ranked[i-1].Score, ranked[i].Score)
	}

	again, err := eng.Optimize(context.Background(), ser, mustFactory(t, "sma"), nil, grid, ObjectiveSharpe, 1)
	require.NoError(t, err)
	assert.Equal(t, res.Best.Params, again.Best.Params)
}

func TestOptimizeDrawdownIsMinimized(t *testing.T) {
	ser := wave(200)
	grid := Grid{"period": {3, 10, 30}}
	res, err := NewEngine(testConfig()).Optimize(context.Background(), ser, mustFactory(t, "momentum"),
		strategies.Params{"momentum_threshold": 0.01}, grid, ObjectiveMaxDrawdown, 0)
	require.NoError(t, err)

	for _, tr := range res.Trials {
		assert.GreaterOrEqual(t, tr.Result.Metrics.MaxDrawdown, res.Best.Result.Metrics.MaxDrawdown)
	}
}

func TestOptimizeNothingValid(t *testing.T) {
	grid := Grid{"short_period": {10}, "long_period": {5}}
	res, err := NewEngine(testConfig()).Optimize(context.Background(), wave(50), mustFactory(t, "sma"), nil, grid, ObjectiveTotalReturn, 1)
	assert.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.Skipped)
	assert.Nil(t, res.Best)
}

func TestParseObjective(t *testing.T) {
	for in, want := range map[string]Objective{
		"sharpe":        ObjectiveSharpe,
		"Total-Return":  ObjectiveTotalReturn,
		"return":        ObjectiveTotalReturn,
		"win_rate":      ObjectiveWinRate,
		"profit_factor": ObjectiveProfitFactor,
		"drawdown":      ObjectiveMaxDrawdown,
	} {
		got, err := ParseObjective(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseObjective("calmar")
	assert.Error(t, err)

	_, err = NewEngine(testConfig()).Optimize(context.Background(), wave(20), mustFactory(t, "noop"), nil, nil, "calmar", 1)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}
