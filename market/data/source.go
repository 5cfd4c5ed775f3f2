// Package data loads bar series from files or generates them.
package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/barsim/market"
)

// Source produces a bar series for a backtest.
type Source interface {
	Load(ctx context.Context) (market.Series, error)
}

// Range is a half-open time window [From, To). Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

func (r Range) Apply(s market.Series) market.Series {
	if r.From.IsZero() && r.To.IsZero() {
		return s
	}
	return s.Between(r.From, r.To)
}

func (r Range) String() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s)", f(r.From), f(r.To))
}

// ParseDate accepts RFC3339, RFC3339Nano, "2006-01-02 15:04:05" and
// "2006-01-02". Dates without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

// ParseRange builds a Range from two optional date strings.
func ParseRange(from, to string) (Range, error) {
	var r Range
	var err error
	if strings.TrimSpace(from) != "" {
		if r.From, err = ParseDate(from); err != nil {
			return Range{}, fmt.Errorf("start: %w", err)
		}
	}
	if strings.TrimSpace(to) != "" {
		if r.To, err = ParseDate(to); err != nil {
			return Range{}, fmt.Errorf("end: %w", err)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && !r.To.After(r.From) {
		return Range{}, fmt.Errorf("end %s is not after start %s", to, from)
	}
	return r, nil
}
