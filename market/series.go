package market

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnordered is returned when timestamps are not strictly increasing.
	ErrUnordered = errors.New("bars not in strictly increasing time order")
	// ErrBadBar is returned when a bar breaks the OHLC relationships.
	ErrBadBar = errors.New("invalid bar")
)

// Series is an ordered, read-only sequence of bars.
//
// A Series never changes after construction. Window returns views that share
// the underlying storage, so handing a window to a strategy costs nothing and
// still hides every bar after the cursor.
type Series struct {
	Symbol string
	bars   []Bar
}

// NewSeries copies bars into a new Series. It does not validate; call
// Validate before running anything that depends on ordering.
func NewSeries(symbol string, bars []Bar) Series {
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return Series{Symbol: symbol, bars: cp}
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.bars)
}

// At returns the bar at index i.
func (s Series) At(i int) Bar {
	return s.bars[i]
}

// Last returns the most recent bar. It panics on an empty series.
func (s Series) Last() Bar {
	return s.bars[len(s.bars)-1]
}

// First returns the oldest bar. It panics on an empty series.
func (s Series) First() Bar {
	return s.bars[0]
}

// Window returns bars [0..i] inclusive.
func (s Series) Window(i int) Series {
	if i < 0 {
		return Series{Symbol: s.Symbol}
	}
	if i >= len(s.bars) {
		i = len(s.bars) - 1
	}
	// full slice expression so an append on the view can never reach bar i+1
	return Series{Symbol: s.Symbol, bars: s.bars[: i+1 : i+1]}
}

// Bars returns a copy of the underlying bars.
func (s Series) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

// Closes returns the close prices in order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

// Between returns the bars with from <= Time < to. Zero bounds are open.
func (s Series) Between(from, to time.Time) Series {
	out := make([]Bar, 0, len(s.bars))
	for _, b := range s.bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !b.Time.Before(to) {
			continue
		}
		out = append(out, b)
	}
	return Series{Symbol: s.Symbol, bars: out}
}

// Validate checks every bar and the strict ordering of timestamps.
func (s Series) Validate() error {
	for i, b := range s.bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w at index %d: %v", ErrBadBar, i, err)
		}
		if i > 0 && !b.Time.After(s.bars[i-1].Time) {
			return fmt.Errorf("%w: index %d (%s) not after index %d (%s)",
				ErrUnordered, i, b.Time.Format(time.RFC3339),
				i-1, s.bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Iterator walks the series in time order.
type Iterator struct {
	s   Series
	idx int
}

func (s Series) Iterator() *Iterator {
	return &Iterator{s: s, idx: -1}
}

func (it *Iterator) Next() bool {
	it.idx++
	return it.idx < len(it.s.bars)
}

func (it *Iterator) Bar() Bar {
	return it.s.bars[it.idx]
}

func (it *Iterator) Index() int {
	return it.idx
}
