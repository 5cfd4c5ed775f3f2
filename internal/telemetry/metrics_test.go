package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("sma", 20*time.Millisecond, 4, 250, nil)
	m.ObserveRun("sma", 10*time.Millisecond, 2, 250, nil)
	m.ObserveRun("rsi", time.Millisecond, 0, 0, errors.New("bad params"))
	m.ObserveRun("rsi", time.Millisecond, 0, 0, context.Canceled)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("sma", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rsi", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rsi", "cancelled")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.trades.WithLabelValues("sma")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.bars))
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() { m.ObserveRun("sma", time.Second, 1, 1, nil) })
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("buy_hold", time.Millisecond, 1, 10, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `barsim_runs_total{outcome="ok",strategy="buy_hold"} 1`)
	assert.Contains(t, string(body), "barsim_run_duration_seconds_bucket")
}

func TestServeStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New().Serve(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
