// Package logging builds the process logger and adapts it to the engine's
// logging interface.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/barsim/backtest"
)

type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// JSON selects line-delimited JSON instead of the console format.
	JSON bool
	// Out defaults to stderr.
	Out io.Writer
}

// New returns a zerolog logger configured by opts.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level: %w", err)
		}
		level = l
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	if !opts.JSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// Adapter exposes a zerolog logger as a backtest.Logger.
type Adapter struct {
	l zerolog.Logger
}

var _ backtest.Logger = Adapter{}

func Wrap(l zerolog.Logger) Adapter {
	return Adapter{l: l}
}

func (a Adapter) Debug(msg string, kv ...any) {
	emit(a.l.Debug(), msg, kv)
}

func (a Adapter) Info(msg string, kv ...any) {
	emit(a.l.Info(), msg, kv)
}

// emit attaches alternating key/value pairs. A dangling key gets a nil value.
func emit(e *zerolog.Event, msg string, kv []any) {
	if e == nil {
		return
	}
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		var val any
		if i+1 < len(kv) {
			val = kv[i+1]
		}
		switch v := val.(type) {
		case fmt.Stringer:
			e = e.Stringer(key, v)
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
