package backtest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyData is returned when the series has fewer than two bars.
	ErrEmptyData = errors.New("need at least 2 bars")
	// ErrInvalidConfig covers bad strategy parameters and bad account settings.
	ErrInvalidConfig = errors.New("invalid backtest config")
	// ErrInvalidData is returned when bars are unordered or malformed.
	ErrInvalidData = errors.New("invalid bar data")
)

// StrategyError wraps a failure raised by strategy logic. The run that
// produced it has no result.
type StrategyError struct {
	Strategy string
	Bar      int
	Time     time.Time
	Err      error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy %s failed at bar %d (%s): %v",
		e.Strategy, e.Bar, e.Time.Format(time.RFC3339), e.Err)
}

func (e *StrategyError) Unwrap() error {
	return e.Err
}
