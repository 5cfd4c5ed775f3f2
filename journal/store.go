package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTimeout bounds every store operation.
const DefaultTimeout = 30 * time.Second

// batch keeps multi-row inserts under SQLite's bound-parameter limit.
const batch = 500

// Store is a run journal over SQLite or PostgreSQL.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Driver normalizes a driver name to the one registered with database/sql.
func Driver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "postgres", "postgresql", "pg":
		return "postgres", nil
	}
	return "", fmt.Errorf("unsupported journal driver %q (supported: sqlite3, postgres)", name)
}

// Open connects and creates the schema if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	driver, err := Driver(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("journal dsn is required")
	}
	if driver == "sqlite3" && !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s journal: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s journal: %w", driver, err)
	}
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, timeout: DefaultTimeout}, nil
}

// OpenSQLite opens (or creates) a journal file.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	return Open(ctx, "sqlite3", path)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes the run, its trades and its equity curve in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, rec Record) error {
	if rec.Run.RunID == "" {
		return fmt.Errorf("save run: empty run id")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created_at, strategy, params, symbol, start_time, end_time, bars,
		 initial_cash, final_equity, net_profit, commission, commission_rate,
		 total_return, annualized_return, sharpe, sortino, max_drawdown,
		 total_trades, wins, losses, win_rate, profit_factor)
		VALUES
		(:run_id, :created_at, :strategy, :params, :symbol, :start_time, :end_time, :bars,
		 :initial_cash, :final_equity, :net_profit, :commission, :commission_rate,
		 :total_return, :annualized_return, :sharpe, :sortino, :max_drawdown,
		 :total_trades, :wins, :losses, :win_rate, :profit_factor)`, rec.Run); err != nil {
		return fmt.Errorf("insert run %s: %w", rec.Run.RunID, err)
	}

	for lo := 0; lo < len(rec.Trades); lo += batch {
		hi := min(lo+batch, len(rec.Trades))
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO trades
			(run_id, seq, entry_time, exit_time, entry_price, exit_price, size, gross_pnl, commission, net_pnl, reason)
			VALUES
			(:run_id, :seq, :entry_time, :exit_time, :entry_price, :exit_price, :size, :gross_pnl, :commission, :net_pnl, :reason)`,
			rec.Trades[lo:hi]); err != nil {
			return fmt.Errorf("insert trades for %s: %w", rec.Run.RunID, err)
		}
	}

	for lo := 0; lo < len(rec.Equity); lo += batch {
		hi := min(lo+batch, len(rec.Equity))
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO equity (run_id, seq, time, equity)
			VALUES (:run_id, :seq, :time, :equity)`,
			rec.Equity[lo:hi]); err != nil {
			return fmt.Errorf("insert equity for %s: %w", rec.Run.RunID, err)
		}
	}

	return tx.Commit()
}

const runColumns = `run_id, created_at, strategy, params, symbol, start_time, end_time, bars,
	initial_cash, final_equity, net_profit, commission, commission_rate,
	total_return, annualized_return, sharpe, sortino, max_drawdown,
	total_trades, wins, losses, win_rate, profit_factor`

// GetRun returns one run or ErrNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r Run
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+runColumns+` FROM backtest_runs WHERE run_id = ?`), runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY created_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ListTrades returns the trade log of a run ordered by entry time.
func (s *Store) ListTrades(ctx context.Context, runID string) ([]TradeRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	trades := []TradeRow{}
	err := s.db.SelectContext(ctx, &trades, s.db.Rebind(`
		SELECT run_id, seq, entry_time, exit_time, entry_price, exit_price, size, gross_pnl, commission, net_pnl, reason
		FROM trades
		WHERE run_id = ?
		ORDER BY entry_time ASC, seq ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("list trades %s: %w", runID, err)
	}
	return trades, nil
}

// ListEquity returns the equity curve of a run in bar order.
func (s *Store) ListEquity(ctx context.Context, runID string) ([]EquityRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	eq := []EquityRow{}
	err := s.db.SelectContext(ctx, &eq, s.db.Rebind(`
		SELECT run_id, seq, time, equity
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC`), runID)
	if err != nil {
		return nil, fmt.Errorf("list equity %s: %w", runID, err)
	}
	return eq, nil
}

// LoadRecord reads a run with its trades and equity curve.
func (s *Store) LoadRecord(ctx context.Context, runID string) (Record, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return Record{}, err
	}
	trades, err := s.ListTrades(ctx, runID)
	if err != nil {
		return Record{}, err
	}
	eq, err := s.ListEquity(ctx, runID)
	if err != nil {
		return Record{}, err
	}
	return Record{Run: run, Trades: trades, Equity: eq}, nil
}

// DeleteRun removes a run and its rows. Deleting a missing run is
// ErrNotFound.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"trades", "equity"} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE run_id = ?`), runID); err != nil {
			return fmt.Errorf("delete %s for %s: %w", table, runID, err)
		}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM backtest_runs WHERE run_id = ?`), runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return tx.Commit()
}
