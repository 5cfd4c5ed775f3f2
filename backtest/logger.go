package backtest

// Logger is the side channel the engine reports progress on. *slog.Logger
// satisfies it, and internal/logging adapts zerolog to it.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
