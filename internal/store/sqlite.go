package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"turtle/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	market          TEXT    NOT NULL,
	start_date      TEXT    NOT NULL,
	end_date        TEXT    NOT NULL,
	instruments     INTEGER NOT NULL,
	initial_balance TEXT    NOT NULL,
	final_balance   TEXT    NOT NULL,
	created_at      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS trades (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	symbol      TEXT    NOT NULL,
	size        INTEGER NOT NULL,
	entry_date  TEXT    NOT NULL,
	entry_price REAL    NOT NULL,
	stop_price  REAL    NOT NULL,
	exit_date   TEXT    NOT NULL,
	exit_price  REAL    NOT NULL,
	exit_reason TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_run ON trades(run_id, symbol);
CREATE TABLE IF NOT EXISTS balances (
	run_id  INTEGER NOT NULL REFERENCES runs(id),
	date    TEXT    NOT NULL,
	balance TEXT    NOT NULL,
	PRIMARY KEY (run_id, date)
);
CREATE TABLE IF NOT EXISTS selections (
	run_id           INTEGER NOT NULL REFERENCES runs(id),
	month            TEXT    NOT NULL,
	symbol           TEXT    NOT NULL,
	entry_window     INTEGER NOT NULL,
	exit_window      INTEGER NOT NULL,
	entries_disabled INTEGER NOT NULL,
	gain             TEXT    NOT NULL,
	PRIMARY KEY (run_id, month, symbol)
);
`

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and makes
// sure the result tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps writes serialized and ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveRun inserts the run header.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) (int64, error) {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (market, start_date, end_date, instruments, initial_balance, final_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(run.Market), dateKey(run.Start), dateKey(run.End), run.Instruments,
		run.InitialBalance.String(), run.FinalBalance.String(), created.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	return res.LastInsertId()
}

// SaveTrades inserts trades in one transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID int64, trades []Trade) error {
	return s.inTx(ctx, `INSERT INTO trades
		(run_id, symbol, size, entry_date, entry_price, stop_price, exit_date, exit_price, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(trades), func(stmt *sql.Stmt, i int) error {
			t := trades[i]
			_, err := stmt.ExecContext(ctx, runID, t.Symbol, t.Size,
				dateKey(t.EntryDate), t.EntryPrice, t.StopPrice,
				dateKey(t.ExitDate), t.ExitPrice, string(t.ExitReason))
			return err
		})
}

// SaveBalanceHistory inserts daily balances in one transaction.
func (s *SQLiteStore) SaveBalanceHistory(ctx context.Context, runID int64, history []Balance) error {
	return s.inTx(ctx, `INSERT INTO balances (run_id, date, balance) VALUES (?, ?, ?)`,
		len(history), func(stmt *sql.Stmt, i int) error {
			_, err := stmt.ExecContext(ctx, runID, dateKey(history[i].Date), history[i].Balance.String())
			return err
		})
}

// SaveSelections inserts monthly parameter sets in one transaction.
func (s *SQLiteStore) SaveSelections(ctx context.Context, runID int64, selections []Selection) error {
	return s.inTx(ctx, `INSERT INTO selections
		(run_id, month, symbol, entry_window, exit_window, entries_disabled, gain)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(selections), func(stmt *sql.Stmt, i int) error {
			sel := selections[i]
			_, err := stmt.ExecContext(ctx, runID, dateKey(sel.Month), sel.Symbol,
				sel.EntryWindow, sel.ExitWindow, sel.EntriesDisabled, sel.Gain.String())
			return err
		})
}

// ListRuns returns every run, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, market, start_date, end_date, instruments, initial_balance, final_balance, created_at
		 FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                  Run
			market, start, end string
			initial, final     string
			created            int64
		)
		if err := rows.Scan(&r.ID, &market, &start, &end, &r.Instruments, &initial, &final, &created); err != nil {
			return nil, err
		}
		r.Market = domain.Market(market)
		if r.Start, err = parseDateKey(start); err != nil {
			return nil, err
		}
		if r.End, err = parseDateKey(end); err != nil {
			return nil, err
		}
		if r.InitialBalance, err = decimal.NewFromString(initial); err != nil {
			return nil, err
		}
		if r.FinalBalance, err = decimal.NewFromString(final); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTrades returns the trades of a run ordered by symbol and entry date.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID int64) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, size, entry_date, entry_price, stop_price, exit_date, exit_price, exit_reason
		 FROM trades WHERE run_id = ? ORDER BY symbol, entry_date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var (
			t                Trade
			entry, exit, why string
		)
		if err := rows.Scan(&t.Symbol, &t.Size, &entry, &t.EntryPrice, &t.StopPrice, &exit, &t.ExitPrice, &why); err != nil {
			return nil, err
		}
		if t.EntryDate, err = parseDateKey(entry); err != nil {
			return nil, err
		}
		if t.ExitDate, err = parseDateKey(exit); err != nil {
			return nil, err
		}
		t.ExitReason = domain.ExitReason(why)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// BalanceHistory returns the daily balances of a run in date order.
func (s *SQLiteStore) BalanceHistory(ctx context.Context, runID int64) ([]Balance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, balance FROM balances WHERE run_id = ? ORDER BY date`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Balance
	for rows.Next() {
		var date, bal string
		if err := rows.Scan(&date, &bal); err != nil {
			return nil, err
		}
		var b Balance
		if b.Date, err = parseDateKey(date); err != nil {
			return nil, err
		}
		if b.Balance, err = decimal.NewFromString(bal); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListSelections returns the monthly parameter sets of a run ordered by
// month and symbol.
func (s *SQLiteStore) ListSelections(ctx context.Context, runID int64) ([]Selection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT month, symbol, entry_window, exit_window, entries_disabled, gain
		 FROM selections WHERE run_id = ? ORDER BY month, symbol`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Selection
	for rows.Next() {
		var (
			sel         Selection
			month, gain string
		)
		if err := rows.Scan(&month, &sel.Symbol, &sel.EntryWindow, &sel.ExitWindow, &sel.EntriesDisabled, &gain); err != nil {
			return nil, err
		}
		if sel.Month, err = parseDateKey(month); err != nil {
			return nil, err
		}
		if sel.Gain, err = decimal.NewFromString(gain); err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, rows.Err()
}

// inTx prepares query once and runs exec for each of n rows inside a single
// transaction.
func (s *SQLiteStore) inTx(ctx context.Context, query string, n int, exec func(*sql.Stmt, int) error) error {
	if n == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.DateOnly)
}

func parseDateKey(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}
