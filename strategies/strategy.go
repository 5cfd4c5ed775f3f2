// Package strategies holds the bar-driven decision logic plugged into the
// backtest engine.
//
// A Strategy is a pure decision function: it sees the bars up to and
// including the current one plus a snapshot of the portfolio, and returns an
// intent. It never places orders and never logs. Instances carry rolling
// indicator state and serve exactly one run.
package strategies

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/barsim/broker"
	"github.com/rustyeddy/barsim/market"
)

// ErrInvalidParams is returned by factories for unusable parameters.
var ErrInvalidParams = errors.New("invalid strategy parameters")

type Strategy interface {
	Name() string

	// OnBar decides on the last bar of window. window never contains bars
	// after the current one.
	OnBar(window market.Series, state broker.PortfolioState) (broker.Intent, error)
}

// Factory builds a fresh Strategy from params.
type Factory func(p Params) (Strategy, error)

// Params are numeric strategy parameters keyed by name.
type Params map[string]float64

// Clone returns a copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns defaults overlaid with p.
func (p Params) Merge(defaults Params) Params {
	out := defaults.Clone()
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Float returns p[key] or def when unset.
func (p Params) Float(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Int returns p[key] as an int. Non-integral values are rejected.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParams, key, v)
	}
	return int(v), nil
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders p as "a=1 b=2" in key order.
func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, " ")
}

// only rejects keys outside allowed.
func (p Params) only(allowed ...string) error {
	for _, k := range p.Keys() {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown parameter %q (allowed: %s)",
				ErrInvalidParams, k, strings.Join(allowed, ", "))
		}
	}
	return nil
}

func positiveInt(p Params, key string, def int) (int, error) {
	v, err := p.Int(key, def)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParams, key, v)
	}
	return v, nil
}

// Info describes a registered strategy.
type Info struct {
	Name        string
	Description string
	Defaults    Params
}

type entry struct {
	info    Info
	factory Factory
}

var (
	mu       sync.RWMutex
	registry = make(map[string]entry)
	aliases  = make(map[string]string)
)

func normalize(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Register adds a strategy under name and any aliases. Names are case
// insensitive and "-" is treated as "_".
func Register(info Info, f Factory, alias ...string) {
	mu.Lock()
	defer mu.Unlock()

	name := normalize(info.Name)
	info.Name = name
	registry[name] = entry{info: info, factory: f}
	for _, a := range alias {
		aliases[normalize(a)] = name
	}
}

func lookup(name string) (entry, bool) {
	mu.RLock()
	defer mu.RUnlock()

	n := normalize(name)
	if canon, ok := aliases[n]; ok {
		n = canon
	}
	e, ok := registry[n]
	return e, ok
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	e, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return e.factory, nil
}

// Describe returns the registry entry for name.
func Describe(name string) (Info, bool) {
	e, ok := lookup(name)
	if !ok {
		return Info{}, false
	}
	info := e.info
	info.Defaults = info.Defaults.Clone()
	return info, true
}

// New builds the strategy registered under name.
func New(name string, p Params) (Strategy, error) {
	f, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(p)
}

// Names returns the canonical strategy names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// cursor feeds every bar of successive windows to a strategy exactly once.
type cursor struct {
	seen int
}

// sync calls step for each bar of w not consumed yet. A window shorter than
// what was consumed means a new series, so state is reset and replayed.
func (c *cursor) sync(w market.Series, reset func(), step func(market.Bar)) {
	if w.Len() < c.seen {
		reset()
		c.seen = 0
	}
	for ; c.seen < w.Len(); c.seen++ {
		step(w.At(c.seen))
	}
}
