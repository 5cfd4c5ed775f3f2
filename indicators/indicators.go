// Package indicators provides streaming technical indicators for strategies.
package indicators

import "github.com/rustyeddy/barsim/market"

// Indicator computes a single streaming value from bars.
// It is deterministic and only ever sees bars it has been given.
type Indicator interface {
	// Name returns a stable identifier like "SMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next closed bar.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful.
	Ready() bool

	// Value returns the current value, or 0 when !Ready().
	Value() float64
}

// window is a fixed-capacity FIFO of the most recent values.
type window struct {
	vals []float64
	size int
}

func newWindow(size int) window {
	return window{vals: make([]float64, 0, size), size: size}
}

func (w *window) push(v float64) {
	if w.size <= 0 {
		return
	}
	if len(w.vals) == w.size {
		copy(w.vals, w.vals[1:])
		w.vals = w.vals[:w.size-1]
	}
	w.vals = append(w.vals, v)
}

func (w *window) full() bool {
	return w.size > 0 && len(w.vals) == w.size
}

func (w *window) reset() {
	w.vals = w.vals[:0]
}

func (w *window) mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}
