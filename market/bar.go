package market

import (
	"fmt"
	"time"
)

// Bar is one OHLCV sample for a fixed time interval.
type Bar struct {
	Time time.Time

	Open  float64
	High  float64
	Low   float64
	Close float64

	Volume float64
}

// Validate checks the OHLC relationships of a single bar.
func (b Bar) Validate() error {
	if b.Time.IsZero() {
		return fmt.Errorf("bar has zero timestamp")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s: prices must be positive", b.Time.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %v", b.Time.Format(time.RFC3339), b.Volume)
	}
	if b.High < max(b.Open, b.Close) {
		return fmt.Errorf("bar %s: high %v below max(open, close)", b.Time.Format(time.RFC3339), b.High)
	}
	if b.Low > min(b.Open, b.Close) {
		return fmt.Errorf("bar %s: low %v above min(open, close)", b.Time.Format(time.RFC3339), b.Low)
	}
	return nil
}
