package broker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is what a strategy wants done on the next fill.
type Action int8

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Intent is produced fresh by a strategy on every bar.
type Intent struct {
	Action Action

	// Size overrides the sizing policy when positive. It is still clamped
	// to what the cash balance can afford.
	Size decimal.Decimal

	Reason string
}

// HoldIntent is the zero decision.
var HoldIntent = Intent{Action: Hold}

func BuyIntent(reason string) Intent {
	return Intent{Action: Buy, Reason: reason}
}

func SellIntent(reason string) Intent {
	return Intent{Action: Sell, Reason: reason}
}

// PortfolioState is a snapshot of the simulated account.
//
// RealizedPnL is gross of commission; Commission is the running total of
// every fee charged, so at any time
//
//	Cash + PositionSize*AvgPrice + Commission == InitialCash + RealizedPnL
type PortfolioState struct {
	Cash          decimal.Decimal
	PositionSize  decimal.Decimal
	AvgPrice      decimal.Decimal
	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal
	Commission    decimal.Decimal

	// MarkPrice is the last price the position was valued at.
	MarkPrice decimal.Decimal
	EntryTime time.Time
}

// Flat reports whether there is no open position.
func (s PortfolioState) Flat() bool {
	return !s.PositionSize.IsPositive()
}

// Equity is cash plus the position marked at MarkPrice.
func (s PortfolioState) Equity() decimal.Decimal {
	return s.Cash.Add(s.PositionSize.Mul(s.MarkPrice))
}

// Fill is the outcome of applying an intent. Executed is false for HOLD and
// for intents that were no-ops (BUY while long, SELL while flat).
type Fill struct {
	Executed   bool
	Action     Action
	Time       time.Time
	Price      decimal.Decimal
	Size       decimal.Decimal
	Commission decimal.Decimal
	Reason     string

	// Trade is set when the fill closed a position.
	Trade *Trade
}

// Trade is a closed round trip. It is never mutated after creation.
type Trade struct {
	Seq        int
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Size       decimal.Decimal
	GrossPnL   decimal.Decimal
	Commission decimal.Decimal // entry + exit
	NetPnL     decimal.Decimal
	Reason     string
}

// Duration is how long the position was held.
func (t Trade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// ReturnPct is net PnL relative to the entry notional.
func (t Trade) ReturnPct() float64 {
	notional := t.EntryPrice.Mul(t.Size)
	if notional.IsZero() {
		return 0
	}
	return t.NetPnL.Div(notional).InexactFloat64()
}
