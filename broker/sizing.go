package broker

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// SizingMode selects how a BUY is sized.
type SizingMode string

const (
	// SizePercent spends a fraction of current equity.
	SizePercent SizingMode = "percent"
	// SizeUnits buys a fixed number of units.
	SizeUnits SizingMode = "units"
)

// Sizing is the position sizing policy. It is always explicit; there is no
// implied default inside the simulator.
type Sizing struct {
	Mode    SizingMode
	Percent decimal.Decimal // fraction of equity in (0, 1], SizePercent only
	Units   decimal.Decimal // SizeUnits only

	// LotSize is the smallest tradable increment. Zero means whole units.
	LotSize decimal.Decimal
}

// PercentOfEquity sizes each entry as pct (0.95 = 95%) of equity in whole units.
func PercentOfEquity(pct float64) Sizing {
	return Sizing{Mode: SizePercent, Percent: decimal.NewFromFloat(pct)}
}

// FixedUnits sizes each entry as a fixed quantity in whole units.
func FixedUnits(units float64) Sizing {
	return Sizing{Mode: SizeUnits, Units: decimal.NewFromFloat(units)}
}

// ParseSizingMode accepts "percent"/"pct"/"equity" and "units"/"fixed".
func ParseSizingMode(s string) (SizingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "pct", "equity":
		return SizePercent, nil
	case "units", "fixed":
		return SizeUnits, nil
	default:
		return "", fmt.Errorf("unknown sizing mode %q (supported: percent, units)", s)
	}
}

func (s Sizing) Validate() error {
	if s.LotSize.IsNegative() {
		return fmt.Errorf("sizing: lot size must not be negative")
	}
	switch s.Mode {
	case SizePercent:
		if !s.Percent.IsPositive() || s.Percent.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("sizing: percent must be in (0, 1], got %s", s.Percent)
		}
	case SizeUnits:
		if !s.Units.IsPositive() {
			return fmt.Errorf("sizing: units must be positive, got %s", s.Units)
		}
	default:
		return fmt.Errorf("sizing: unknown mode %q", s.Mode)
	}
	return nil
}

func (s Sizing) lot() decimal.Decimal {
	if s.LotSize.IsPositive() {
		return s.LotSize
	}
	return decimal.NewFromInt(1)
}

// target returns the desired quantity before the cash clamp.
func (s Sizing) target(equity, unitCost decimal.Decimal) decimal.Decimal {
	switch s.Mode {
	case SizePercent:
		return equity.Mul(s.Percent).Div(unitCost)
	default:
		return s.Units
	}
}

// floorLots rounds q down to a whole number of lots.
func floorLots(q, lot decimal.Decimal) decimal.Decimal {
	return q.Div(lot).Floor().Mul(lot)
}
