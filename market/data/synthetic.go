package data

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/market"
)

// Model selects the close-price process of a synthetic series.
type Model string

const (
	// ModelGBM compounds normally distributed per-bar returns.
	ModelGBM Model = "gbm"
	// ModelTrending is GBM with a positive drift of at least TrendDrift.
	ModelTrending Model = "trending"
	// ModelMeanReverting pulls the price back toward the initial price.
	ModelMeanReverting Model = "mean_reverting"
)

const (
	TrendDrift = 0.001
	minPrice   = 0.01
)

func ParseModel(s string) (Model, error) {
	m := Model(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	switch m {
	case "", ModelGBM:
		return ModelGBM, nil
	case ModelTrending, "trend":
		return ModelTrending, nil
	case ModelMeanReverting, "meanreverting", "mr":
		return ModelMeanReverting, nil
	}
	return "", fmt.Errorf("unknown synthetic model %q (supported: gbm, trending, mean_reverting)", s)
}

// Synthetic generates a reproducible OHLCV series. Drift and Volatility are
// per bar. Prices never fall below one cent.
type Synthetic struct {
	Symbol       string
	Model        Model
	Start        time.Time
	Bars         int
	Interval     time.Duration
	InitialPrice float64
	Drift        float64
	Volatility   float64
	// ReversionSpeed is the fraction of the gap to the mean closed per bar.
	ReversionSpeed float64
	Seed           uint64

	Range Range
}

var _ Source = Synthetic{}

func DefaultSynthetic() Synthetic {
	return Synthetic{
		Symbol:         "SYNTH",
		Model:          ModelGBM,
		Start:          time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		Bars:           504,
		Interval:       24 * time.Hour,
		InitialPrice:   100,
		Drift:          0.0005,
		Volatility:     0.02,
		ReversionSpeed: 0.1,
		Seed:           42,
	}
}

func (g Synthetic) Validate() error {
	if _, err := ParseModel(string(g.Model)); err != nil {
		return err
	}
	switch {
	case g.Bars < 2:
		return fmt.Errorf("synthetic: bars must be at least 2, got %d", g.Bars)
	case g.Interval <= 0:
		return fmt.Errorf("synthetic: interval must be positive")
	case g.InitialPrice <= 0:
		return fmt.Errorf("synthetic: initial price must be positive")
	case g.Volatility < 0:
		return fmt.Errorf("synthetic: volatility must be >= 0")
	case g.ReversionSpeed < 0 || g.ReversionSpeed > 1:
		return fmt.Errorf("synthetic: reversion speed must be in [0,1]")
	}
	return nil
}

func (g Synthetic) Load(ctx context.Context) (market.Series, error) {
	if err := ctx.Err(); err != nil {
		return market.Series{}, err
	}
	s, err := g.Generate()
	if err != nil {
		return market.Series{}, err
	}
	return g.Range.Apply(s), nil
}

// Generate builds the series. The same Synthetic always yields the same bars.
func (g Synthetic) Generate() (market.Series, error) {
	if err := g.Validate(); err != nil {
		return market.Series{}, err
	}
	model, _ := ParseModel(string(g.Model))
	rng := rand.New(rand.NewPCG(g.Seed, g.Seed^0x9e3779b97f4a7c15))

	closes := make([]float64, g.Bars)
	closes[0] = g.InitialPrice
	drift := g.Drift
	if model == ModelTrending {
		drift = math.Max(math.Abs(drift), TrendDrift)
	}
	for i := 1; i < g.Bars; i++ {
		prev := closes[i-1]
		var next float64
		switch model {
		case ModelMeanReverting:
			next = prev + g.ReversionSpeed*(g.InitialPrice-prev) + prev*g.Volatility*rng.NormFloat64()
		default:
			next = prev * (1 + drift + g.Volatility*rng.NormFloat64())
		}
		closes[i] = math.Max(next, minPrice)
	}

	intraday := g.Volatility * 0.3
	start := g.Start
	if start.IsZero() {
		start = DefaultSynthetic().Start
	}

	bars := make([]market.Bar, g.Bars)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = math.Max(closes[i-1]*(1+intraday*0.5*rng.NormFloat64()), minPrice)
		}
		open, c = cents(open), cents(c)
		high := cents(math.Max(open, c) * (1 + math.Abs(intraday*rng.NormFloat64())))
		low := cents(math.Min(open, c) * (1 - math.Abs(intraday*rng.NormFloat64())))

		bars[i] = market.Bar{
			Time:   start.Add(time.Duration(i) * g.Interval),
			Open:   open,
			High:   math.Max(high, math.Max(open, c)),
			Low:    math.Max(math.Min(low, math.Min(open, c)), minPrice),
			Close:  c,
			Volume: math.Floor(math.Exp(11 + 0.5*rng.NormFloat64())),
		}
	}
	return market.NewSeries(g.Symbol, bars), nil
}

func cents(v float64) float64 {
	return math.Max(math.Round(v*100)/100, minPrice)
}
