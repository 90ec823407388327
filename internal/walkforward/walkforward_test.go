package walkforward

import (
	"context"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle/internal/domain"
	"turtle/internal/engine"
	"turtle/internal/series"
	"turtle/internal/strategy"
	"turtle/internal/strategy/builtins"
)

var factory = builtins.DonchianFactory(strategy.DefaultRules())

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func daily(t *testing.T, symbol string, from time.Time, closes []float64) *series.PriceSeries {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Date: from.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 2_000_000}
	}
	s, err := series.New(symbol, bars)
	require.NoError(t, err)
	return s
}

func randomWalk(t *testing.T, symbol string, seed int64, from time.Time, n int) *series.PriceSeries {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	px := 30.0
	for i := range closes {
		px += rng.NormFloat64()
		if px < 1 {
			px = 1
		}
		closes[i] = px
	}
	return daily(t, symbol, from, closes)
}

// risingThenFlat climbs by one per day until the last day of January 2014
// and stays flat afterwards.
func risingThenFlat(t *testing.T, symbol string) *series.PriceSeries {
	t.Helper()
	from := time.Date(2013, 12, 1, 0, 0, 0, 0, time.UTC)
	peak := time.Date(2014, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2014, 4, 1, 0, 0, 0, 0, time.UTC)
	var closes []float64
	px := 100.0
	for d := from; !d.After(end); d = d.AddDate(0, 0, 1) {
		if !d.After(peak) {
			px++
		}
		closes = append(closes, px)
	}
	return daily(t, symbol, from, closes)
}

func TestGridParamsOrder(t *testing.T) {
	t.Parallel()
	ps := DefaultGrid().Params(10000)
	require.Len(t, ps, 11*9)
	assert.Equal(t, strategy.Params{EntryWindow: 10, ExitWindow: 2, InitialCapital: 10000}, ps[0])
	assert.Equal(t, strategy.Params{EntryWindow: 10, ExitWindow: 3, InitialCapital: 10000}, ps[1])
	assert.Equal(t, strategy.Params{EntryWindow: 11, ExitWindow: 2, InitialCapital: 10000}, ps[9])
	assert.Equal(t, strategy.Params{EntryWindow: 20, ExitWindow: 10, InitialCapital: 10000}, ps[len(ps)-1])

	assert.Error(t, Grid{EntryMin: 5, EntryMax: 4, ExitMin: 1, ExitMax: 1}.Validate())
	assert.Error(t, Grid{EntryMin: 1, EntryMax: 1, ExitMin: 0, ExitMax: 1}.Validate())
	assert.NoError(t, DefaultGrid().Validate())
}

func TestNewOptimizerValidation(t *testing.T) {
	t.Parallel()
	_, err := NewOptimizer(nil, 10000)
	assert.Error(t, err)
	_, err = NewOptimizer(factory, 0)
	assert.Error(t, err)
	_, err = NewOptimizer(factory, 10000, WithGrid(Grid{}))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	t.Parallel()
	previous := map[string]strategy.Params{
		"ABEV3": {EntryWindow: 12, ExitWindow: 4, InitialCapital: 10000},
		"BBAS3": {EntryWindow: 15, ExitWindow: 7, InitialCapital: 10000},
	}
	fresh := map[string]strategy.Params{
		"BBAS3": {EntryWindow: 18, ExitWindow: 3, InitialCapital: 10000},
		"CSNA3": {EntryWindow: 10, ExitWindow: 2, InitialCapital: 10000},
	}

	merged := Merge(previous, fresh)

	require.Len(t, merged, 3)
	assert.Equal(t, strategy.Params{ExitWindow: 4, InitialCapital: 10000, EntriesDisabled: true}, merged["ABEV3"])
	assert.Equal(t, fresh["BBAS3"], merged["BBAS3"])
	assert.Equal(t, fresh["CSNA3"], merged["CSNA3"])
	assert.Empty(t, Merge(nil, nil))
}

func TestOptimizeMatchesSequentialScan(t *testing.T) {
	t.Parallel()
	from := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	s := randomWalk(t, "PETR4", 7, from, 120)
	start, end := from.AddDate(0, 0, 30), from.AddDate(0, 0, 119)

	// Sequential reference: strictly greatest positive gain in grid order.
	bt := NewBacktester(factory, decimal.NewFromInt(10000))
	var want strategy.Params
	wantOK := false
	best := decimal.Zero
	for _, p := range DefaultGrid().Params(10000) {
		res, err := bt.Run(s, p, start, end)
		require.NoError(t, err)
		if res.Gain.GreaterThan(best) {
			best, want, wantOK = res.Gain, p, true
		}
	}

	for _, workers := range []int{1, 4, 16} {
		o, err := NewOptimizer(factory, 10000, WithWorkers(workers), WithLogger(quiet()))
		require.NoError(t, err)
		for range 3 {
			sel, ok, err := o.Optimize(context.Background(), s, start, end)
			require.NoError(t, err)
			require.Equal(t, wantOK, ok, "workers=%d", workers)
			if ok {
				assert.Equal(t, want, sel.Params, "workers=%d", workers)
				assert.True(t, sel.Gain.Equal(best))
				assert.Equal(t, "PETR4", sel.Symbol)
			}
		}
	}
}

func TestOptimizeNoGain(t *testing.T) {
	t.Parallel()
	from := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 25
	}
	s := daily(t, "VALE5", from, flat)
	o, err := NewOptimizer(factory, 10000, WithLogger(quiet()))
	require.NoError(t, err)

	_, ok, err := o.Optimize(context.Background(), s, from, from.AddDate(0, 0, 59))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOptimizeCancelled(t *testing.T) {
	t.Parallel()
	from := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	s := randomWalk(t, "PETR4", 1, from, 60)
	o, err := NewOptimizer(factory, 10000, WithWorkers(2), WithLogger(quiet()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = o.Optimize(ctx, s, from, from.AddDate(0, 0, 59))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBacktesterIsolated(t *testing.T) {
	t.Parallel()
	s := risingThenFlat(t, "PETR4")
	bt := NewBacktester(factory, decimal.NewFromInt(10000))
	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2014, 1, 31, 0, 0, 0, 0, time.UTC)
	p := strategy.Params{EntryWindow: 10, ExitWindow: 2, InitialCapital: 10000}

	first, err := bt.Run(s, p, start, end)
	require.NoError(t, err)
	second, err := bt.Run(s, p, start, end)
	require.NoError(t, err)

	assert.True(t, first.Gain.IsPositive(), "rising market liquidated at the end gains, got %s", first.Gain)
	assert.True(t, first.Gain.Equal(second.Gain), "trials share no state")
	assert.Equal(t, 1, first.TotalTrades)
	assert.Equal(t, 1, first.Winners)
	assert.True(t, first.FinalBalance.Equal(decimal.NewFromInt(10000).Add(first.Gain)))
}

func TestRunCarriesForwardWithoutFreshSelection(t *testing.T) {
	t.Parallel()
	s := risingThenFlat(t, "PETR4")
	p, err := engine.NewPortfolio([]*series.PriceSeries{s}, decimal.NewFromInt(10000), factory, quiet())
	require.NoError(t, err)
	o, err := NewOptimizer(factory, 10000, WithLogger(quiet()))
	require.NoError(t, err)

	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2014, 4, 1, 0, 0, 0, 0, time.UTC)
	res, err := o.Run(context.Background(), p, start, end)
	require.NoError(t, err)

	require.Len(t, res.Months, 2)
	feb, mar := res.Months[0], res.Months[1]
	assert.True(t, feb.Window.TestStart.Equal(time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.Len(t, feb.Selections, 1, "January rally is profitable")
	assert.Empty(t, feb.Carried)
	assert.False(t, feb.Active["PETR4"].EntriesDisabled)

	assert.Empty(t, mar.Selections, "flat February gains nothing")
	assert.Equal(t, []string{"PETR4"}, mar.Carried)
	prm := mar.Active["PETR4"]
	assert.True(t, prm.EntriesDisabled)
	assert.Equal(t, feb.Selections[0].Params.ExitWindow, prm.ExitWindow)
	assert.True(t, mar.Window.TestEnd.Equal(end), "last window stretches to end")

	// Flat test months never break out, so the live account is untouched.
	assert.Empty(t, p.Trades("PETR4"))
	assert.True(t, res.FinalBalance.Equal(res.InitialBalance))
	assert.Equal(t, prm, p.Strategies()["PETR4"])
}

func TestRunDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()
	from := time.Date(2013, 12, 1, 0, 0, 0, 0, time.UTC)
	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2014, 7, 1, 0, 0, 0, 0, time.UTC)

	run := func(workers int) (*Result, *engine.Portfolio) {
		list := []*series.PriceSeries{
			randomWalk(t, "ABEV3", 11, from, 220),
			randomWalk(t, "BBAS3", 12, from, 220),
			randomWalk(t, "CSNA3", 13, from, 220),
		}
		p, err := engine.NewPortfolio(list, decimal.NewFromInt(10000), factory, quiet())
		require.NoError(t, err)
		o, err := NewOptimizer(factory, 10000, WithWorkers(workers), WithLogger(quiet()))
		require.NoError(t, err)
		res, err := o.Run(context.Background(), p, start, end)
		require.NoError(t, err)
		return res, p
	}

	seq, seqPortfolio := run(1)
	par, parPortfolio := run(8)

	require.Len(t, seq.Months, 5)
	require.Len(t, par.Months, len(seq.Months))
	assert.True(t, seq.FinalBalance.Equal(par.FinalBalance), "sequential %s, parallel %s", seq.FinalBalance, par.FinalBalance)
	for i := range seq.Months {
		assert.Equal(t, seq.Months[i].Selections, par.Months[i].Selections, "month %d", i)
		assert.Equal(t, seq.Months[i].Carried, par.Months[i].Carried, "month %d", i)
	}
	for _, sym := range seqPortfolio.Symbols() {
		assert.Equal(t, seqPortfolio.Trades(sym), parPortfolio.Trades(sym), sym)
		assert.False(t, seqPortfolio.InPosition(sym), "%s left open after run", sym)
	}
	assert.False(t, seq.FinalBalance.IsNegative())
}

func TestRunShortRange(t *testing.T) {
	t.Parallel()
	s := risingThenFlat(t, "PETR4")
	p, err := engine.NewPortfolio([]*series.PriceSeries{s}, decimal.NewFromInt(10000), factory, quiet())
	require.NoError(t, err)
	o, err := NewOptimizer(factory, 10000, WithLogger(quiet()))
	require.NoError(t, err)

	start := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := o.Run(context.Background(), p, start, start.AddDate(0, 1, 10))
	require.NoError(t, err)
	assert.Empty(t, res.Months)
	assert.True(t, res.FinalBalance.Equal(decimal.NewFromInt(10000)))
}
