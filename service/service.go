// Package service is the front door used by the CLI and any agent layer. It
// loads bars, runs the engine, records metrics and journals the outcome.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/barsim/backtest"
	"github.com/rustyeddy/barsim/internal/id"
	"github.com/rustyeddy/barsim/internal/telemetry"
	"github.com/rustyeddy/barsim/journal"
	"github.com/rustyeddy/barsim/market"
	"github.com/rustyeddy/barsim/market/data"
	"github.com/rustyeddy/barsim/strategies"
)

// Saver persists finished runs. *journal.Store satisfies it.
type Saver interface {
	SaveRun(ctx context.Context, rec journal.Record) error
}

type Service struct {
	engine  *backtest.Engine
	log     backtest.Logger
	saver   Saver
	metrics *telemetry.Metrics
	workers int
	now     func() time.Time

	// serializes journal writes from concurrent runs
	saveMu sync.Mutex
}

type Option func(*Service)

func WithJournal(s Saver) Option {
	return func(svc *Service) { svc.saver = s }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithWorkers bounds concurrent runs in Compare and Optimize.
func WithWorkers(n int) Option {
	return func(svc *Service) { svc.workers = n }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// New builds a service around one engine configuration. The engine's logger
// is reused for service messages.
func New(cfg backtest.Config, opts ...Option) *Service {
	s := &Service{
		engine: backtest.NewEngine(cfg),
		log:    cfg.Logger,
		now:    time.Now,
	}
	if s.log == nil {
		s.log = backtest.NopLogger{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Request describes one backtest.
type Request struct {
	Source   data.Source
	Strategy string
	Params   strategies.Params
}

// Report is the summary handed back to callers, with a buy-and-hold
// benchmark over the same bars.
type Report struct {
	RunID string `json:"run_id,omitempty"`
	backtest.Summary
	Symbol string `json:"symbol"`
	Bars   int    `json:"bars"`

	BenchmarkReturn float64 `json:"benchmark_return"`
	Alpha           float64 `json:"alpha"`

	Result *backtest.Result `json:"-"`
}

// BenchmarkReturn is last close over first close minus one.
func BenchmarkReturn(s market.Series) float64 {
	if s.Len() < 2 || s.First().Close == 0 {
		return 0
	}
	return s.Last().Close/s.First().Close - 1
}

func (s *Service) load(ctx context.Context, src data.Source) (market.Series, error) {
	if src == nil {
		return market.Series{}, fmt.Errorf("%w: no data source", backtest.ErrInvalidConfig)
	}
	ser, err := src.Load(ctx)
	if err != nil {
		return market.Series{}, fmt.Errorf("load bars: %w", err)
	}
	s.log.Debug("bars loaded", "symbol", ser.Symbol, "bars", ser.Len())
	return ser, nil
}

func resolve(name string) (strategies.Factory, string, error) {
	f, err := strategies.Lookup(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", backtest.ErrInvalidConfig, err)
	}
	info, _ := strategies.Describe(name)
	return f, info.Name, nil
}

// RunBacktest loads the bars, runs one strategy and journals the result.
func (s *Service) RunBacktest(ctx context.Context, req Request) (*Report, error) {
	factory, canon, err := resolve(req.Strategy)
	if err != nil {
		return nil, err
	}
	ser, err := s.load(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.engine.Run(ctx, ser, factory, req.Params)
	s.observe(canon, time.Since(start), res, err)
	if err != nil {
		return nil, err
	}

	rep := s.report(ser, res)
	if err := s.save(ctx, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

func (s *Service) report(ser market.Series, res *backtest.Result) *Report {
	bench := BenchmarkReturn(ser)
	return &Report{
		Summary:         res.Summary(),
		Symbol:          res.Symbol,
		Bars:            res.Bars,
		BenchmarkReturn: bench,
		Alpha:           res.Metrics.TotalReturn - bench,
		Result:          res,
	}
}

func (s *Service) observe(strategy string, took time.Duration, res *backtest.Result, err error) {
	if res == nil {
		s.metrics.ObserveRun(strategy, took, 0, 0, err)
		return
	}
	s.metrics.ObserveRun(strategy, took, len(res.Trades), res.Bars, err)
}

// save assigns a run id and writes the run when a journal is configured.
func (s *Service) save(ctx context.Context, rep *Report) error {
	if s.saver == nil {
		return nil
	}
	created := s.now()
	runID := id.At(created)
	rec, err := journal.NewRecord(runID, created, rep.Result)
	if err != nil {
		return err
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err := s.saver.SaveRun(ctx, rec); err != nil {
		return fmt.Errorf("journal run: %w", err)
	}
	rep.RunID = runID
	s.log.Info("run journaled", "run_id", runID, "strategy", rep.Strategy)
	return nil
}
