package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/barsim/market"
)

// StdDev is the rolling population standard deviation of closes.
type StdDev struct {
	period int
	closes window
}

func NewStdDev(period int) *StdDev {
	return &StdDev{period: period, closes: newWindow(period)}
}

func (s *StdDev) Name() string {
	return fmt.Sprintf("STDDEV(%d)", s.period)
}

func (s *StdDev) Warmup() int {
	return s.period
}

func (s *StdDev) Reset() {
	s.closes.reset()
}

func (s *StdDev) Update(b market.Bar) {
	s.closes.push(b.Close)
}

func (s *StdDev) Ready() bool {
	return s.closes.full()
}

func (s *StdDev) Value() float64 {
	if !s.Ready() {
		return 0
	}
	mean := s.closes.mean()
	ss := 0.0
	for _, v := range s.closes.vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(s.closes.vals)))
}

// Bollinger holds a moving average with bands num standard deviations away.
type Bollinger struct {
	period int
	num    float64

	mid *SimpleMA
	dev *StdDev
}

func NewBollinger(period int, numStdDev float64) *Bollinger {
	return &Bollinger{
		period: period,
		num:    numStdDev,
		mid:    NewSMA(period),
		dev:    NewStdDev(period),
	}
}

func (bb *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%g)", bb.period, bb.num)
}

func (bb *Bollinger) Warmup() int {
	return bb.period
}

func (bb *Bollinger) Reset() {
	bb.mid.Reset()
	bb.dev.Reset()
}

func (bb *Bollinger) Update(b market.Bar) {
	bb.mid.Update(b)
	bb.dev.Update(b)
}

func (bb *Bollinger) Ready() bool {
	return bb.mid.Ready()
}

// Value returns the middle band.
func (bb *Bollinger) Value() float64 {
	return bb.mid.Value()
}

// Bands returns the lower, middle and upper bands.
func (bb *Bollinger) Bands() (lower, middle, upper float64) {
	if !bb.Ready() {
		return 0, 0, 0
	}
	m := bb.mid.Value()
	w := bb.num * bb.dev.Value()
	return m - w, m, m + w
}
