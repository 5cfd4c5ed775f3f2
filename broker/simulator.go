package broker

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when not even one lot can be bought.
var ErrInsufficientFunds = errors.New("insufficient funds")

// InsufficientFundsError carries the numbers behind ErrInsufficientFunds.
type InsufficientFundsError struct {
	Cash     decimal.Decimal
	Price    decimal.Decimal
	MinUnits decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: cash %s cannot buy %s units at %s",
		e.Cash.StringFixed(2), e.MinUnits, e.Price)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// Simulator executes intents against a single long-only position.
//
// It is not safe for concurrent use; every backtest run owns its own.
type Simulator struct {
	initialCash decimal.Decimal
	rate        decimal.Decimal
	sizing      Sizing

	state     PortfolioState
	entryComm decimal.Decimal
	trades    []Trade
}

// NewSimulator validates its inputs and returns a flat account.
func NewSimulator(initialCash, commissionRate decimal.Decimal, sizing Sizing) (*Simulator, error) {
	if !initialCash.IsPositive() {
		return nil, fmt.Errorf("simulator: initial cash must be positive, got %s", initialCash)
	}
	if commissionRate.IsNegative() || commissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("simulator: commission rate must be in [0, 1), got %s", commissionRate)
	}
	if err := sizing.Validate(); err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	return &Simulator{
		initialCash: initialCash,
		rate:        commissionRate,
		sizing:      sizing,
		state:       PortfolioState{Cash: initialCash},
	}, nil
}

// State returns a snapshot of the portfolio.
func (s *Simulator) State() PortfolioState {
	return s.state
}

// InitialCash returns the starting balance.
func (s *Simulator) InitialCash() decimal.Decimal {
	return s.initialCash
}

// Trades returns a copy of the closed trade log.
func (s *Simulator) Trades() []Trade {
	out := make([]Trade, len(s.trades))
	copy(out, s.trades)
	return out
}

// Mark revalues the open position at price.
func (s *Simulator) Mark(price float64) {
	s.mark(decimal.NewFromFloat(price))
}

func (s *Simulator) mark(px decimal.Decimal) {
	s.state.MarkPrice = px
	if s.state.Flat() {
		s.state.UnrealizedPnL = decimal.Zero
		return
	}
	s.state.UnrealizedPnL = px.Sub(s.state.AvgPrice).Mul(s.state.PositionSize)
}

// Apply executes intent at price and time t.
func (s *Simulator) Apply(intent Intent, price float64, t time.Time) (Fill, error) {
	if price <= 0 {
		return Fill{}, fmt.Errorf("simulator: fill price must be positive, got %v", price)
	}
	px := decimal.NewFromFloat(price)

	switch intent.Action {
	case Buy:
		if !s.state.Flat() {
			return Fill{Action: Buy, Time: t, Reason: intent.Reason}, nil
		}
		return s.open(intent, px, t)
	case Sell:
		if s.state.Flat() {
			return Fill{Action: Sell, Time: t, Reason: intent.Reason}, nil
		}
		return s.close(px, t, intent.Reason), nil
	default:
		return Fill{Action: Hold, Time: t, Reason: intent.Reason}, nil
	}
}

// Close flattens any open position at price. It is a no-op when flat.
func (s *Simulator) Close(price float64, t time.Time, reason string) Fill {
	if s.state.Flat() {
		return Fill{Action: Sell, Time: t, Reason: reason}
	}
	return s.close(decimal.NewFromFloat(price), t, reason)
}

func (s *Simulator) commission(px, size decimal.Decimal) decimal.Decimal {
	return px.Mul(size).Mul(s.rate)
}

func (s *Simulator) open(intent Intent, px decimal.Decimal, t time.Time) (Fill, error) {
	lot := s.sizing.lot()
	unitCost := px.Mul(decimal.NewFromInt(1).Add(s.rate))

	// flat, so equity is cash
	affordable := floorLots(s.state.Cash.Div(unitCost), lot)
	for affordable.IsPositive() && s.cost(px, affordable).GreaterThan(s.state.Cash) {
		affordable = affordable.Sub(lot)
	}
	if affordable.LessThan(lot) {
		return Fill{}, &InsufficientFundsError{Cash: s.state.Cash, Price: px, MinUnits: lot}
	}

	want := s.sizing.target(s.state.Cash, unitCost)
	if intent.Size.IsPositive() {
		want = intent.Size
	}
	size := decimal.Max(floorLots(want, lot), lot)
	size = decimal.Min(size, affordable)

	comm := s.commission(px, size)
	s.state.Cash = s.state.Cash.Sub(px.Mul(size)).Sub(comm)
	s.state.Commission = s.state.Commission.Add(comm)
	s.state.PositionSize = size
	s.state.AvgPrice = px
	s.state.EntryTime = t
	s.entryComm = comm
	s.mark(px)

	return Fill{
		Executed:   true,
		Action:     Buy,
		Time:       t,
		Price:      px,
		Size:       size,
		Commission: comm,
		Reason:     intent.Reason,
	}, nil
}

func (s *Simulator) cost(px, size decimal.Decimal) decimal.Decimal {
	return px.Mul(size).Add(s.commission(px, size))
}

func (s *Simulator) close(px decimal.Decimal, t time.Time, reason string) Fill {
	size := s.state.PositionSize
	comm := s.commission(px, size)
	gross := px.Sub(s.state.AvgPrice).Mul(size)

	s.state.Cash = s.state.Cash.Add(px.Mul(size)).Sub(comm)
	s.state.Commission = s.state.Commission.Add(comm)
	s.state.RealizedPnL = s.state.RealizedPnL.Add(gross)

	tr := Trade{
		Seq:        len(s.trades) + 1,
		EntryTime:  s.state.EntryTime,
		ExitTime:   t,
		EntryPrice: s.state.AvgPrice,
		ExitPrice:  px,
		Size:       size,
		GrossPnL:   gross,
		Commission: s.entryComm.Add(comm),
		NetPnL:     gross.Sub(s.entryComm).Sub(comm),
		Reason:     reason,
	}
	s.trades = append(s.trades, tr)

	s.state.PositionSize = decimal.Zero
	s.state.AvgPrice = decimal.Zero
	s.state.EntryTime = time.Time{}
	s.entryComm = decimal.Zero
	s.mark(px)

	return Fill{
		Executed:   true,
		Action:     Sell,
		Time:       t,
		Price:      px,
		Size:       size,
		Commission: comm,
		Reason:     reason,
		Trade:      &tr,
	}
}
