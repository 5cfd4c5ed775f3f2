package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/barsim/broker"
)

// Config holds the account and analysis settings of a run.
type Config struct {
	InitialCash    decimal.Decimal
	CommissionRate decimal.Decimal // fraction of notional, charged on entry and exit
	Sizing         broker.Sizing

	// BarsPerYear annualizes metrics. Zero infers it from the bar interval.
	BarsPerYear  float64
	RiskFreeRate float64

	Logger Logger
}

// DefaultPercent is the share of equity committed by default, leaving room
// for commission and the gap to the next open.
const DefaultPercent = 0.95

// DefaultConfig is 10,000 in cash, 0.1% commission and 95% of equity per
// entry in whole units.
func DefaultConfig() Config {
	return Config{
		InitialCash:    decimal.NewFromInt(10000),
		CommissionRate: decimal.RequireFromString("0.001"),
		Sizing:         broker.PercentOfEquity(DefaultPercent),
	}
}

func (c Config) Validate() error {
	if !c.InitialCash.IsPositive() {
		return fmt.Errorf("%w: initial cash must be positive, got %s", ErrInvalidConfig, c.InitialCash)
	}
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: commission rate must be in [0, 1), got %s", ErrInvalidConfig, c.CommissionRate)
	}
	if err := c.Sizing.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.BarsPerYear < 0 {
		return fmt.Errorf("%w: bars per year must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) logger() Logger {
	if c.Logger == nil {
		return NopLogger{}
	}
	return c.Logger
}
