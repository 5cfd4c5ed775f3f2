package journal

// Schema is portable between SQLite and PostgreSQL. Money columns are TEXT
// so decimals survive exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	strategy TEXT NOT NULL,
	params TEXT NOT NULL,
	symbol TEXT NOT NULL,
	start_time TIMESTAMP NOT NULL,
	end_time TIMESTAMP NOT NULL,
	bars INTEGER NOT NULL,
	initial_cash TEXT NOT NULL,
	final_equity TEXT NOT NULL,
	net_profit TEXT NOT NULL,
	commission TEXT NOT NULL,
	commission_rate TEXT NOT NULL,
	total_return DOUBLE PRECISION NOT NULL,
	annualized_return DOUBLE PRECISION NOT NULL,
	sharpe DOUBLE PRECISION NOT NULL,
	sortino DOUBLE PRECISION NOT NULL,
	max_drawdown DOUBLE PRECISION NOT NULL,
	total_trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate DOUBLE PRECISION NOT NULL,
	profit_factor DOUBLE PRECISION
);

CREATE INDEX IF NOT EXISTS idx_backtest_runs_created ON backtest_runs(created_at);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	entry_time TIMESTAMP NOT NULL,
	exit_time TIMESTAMP NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	size TEXT NOT NULL,
	gross_pnl TEXT NOT NULL,
	commission TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL REFERENCES backtest_runs(run_id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	time TIMESTAMP NOT NULL,
	equity TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`
