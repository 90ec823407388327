// Package store defines storage interfaces for daily bars and backtest
// results, with a Parquet implementation for bars and a SQLite one for
// results.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"turtle/internal/domain"
)

// BarStore persists and retrieves daily OHLCV bars.
type BarStore interface {
	// WriteBars persists a batch of bars under market, merging with what is
	// already stored. A bar for an existing (symbol, date) replaces it.
	WriteBars(ctx context.Context, market domain.Market, bars []domain.Bar) error

	// ReadBars returns bars for symbol within [start, end] in date order. A
	// zero start or end leaves that side unbounded.
	ReadBars(ctx context.Context, symbol string, market domain.Market, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in market.
	ListSymbols(ctx context.Context, market domain.Market) ([]string, error)
}

// Run is the header of one walk-forward run.
type Run struct {
	ID             int64
	Market         domain.Market
	Start          time.Time
	End            time.Time
	Instruments    int
	InitialBalance decimal.Decimal
	FinalBalance   decimal.Decimal
	CreatedAt      time.Time
}

// Trade is one closed round trip.
type Trade struct {
	Symbol     string
	Size       int64
	EntryDate  time.Time
	EntryPrice float64
	StopPrice  float64
	ExitDate   time.Time
	ExitPrice  float64
	ExitReason domain.ExitReason
}

// Balance is the cash balance at the end of a simulated day.
type Balance struct {
	Date    time.Time
	Balance decimal.Decimal
}

// Selection is the parameter set applied to one instrument for one month.
type Selection struct {
	Month           time.Time
	Symbol          string
	EntryWindow     int
	ExitWindow      int
	EntriesDisabled bool
	Gain            decimal.Decimal
}

// ResultStore persists walk-forward results.
type ResultStore interface {
	// SaveRun inserts run and returns its ID.
	SaveRun(ctx context.Context, run Run) (int64, error)

	// SaveTrades appends the trades of a run.
	SaveTrades(ctx context.Context, runID int64, trades []Trade) error

	// SaveBalanceHistory appends the daily balances of a run.
	SaveBalanceHistory(ctx context.Context, runID int64, history []Balance) error

	// SaveSelections appends the monthly parameter sets of a run.
	SaveSelections(ctx context.Context, runID int64, selections []Selection) error

	// ListRuns returns every stored run, newest first.
	ListRuns(ctx context.Context) ([]Run, error)
}
