package builtins

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle/internal/domain"
	"turtle/internal/series"
	"turtle/internal/strategy"
)

var day0 = time.Date(2014, 3, 3, 0, 0, 0, 0, time.UTC)

func buildSeries(t *testing.T, volume float64, closes ...float64) *series.PriceSeries {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Date: day0.AddDate(0, 0, i), High: c, Low: c, Close: c, Volume: volume}
	}
	s, err := series.New("ITUB4", bars)
	require.NoError(t, err)
	return s
}

func at(i int) time.Time { return day0.AddDate(0, 0, i) }

func newDonchian(t *testing.T, s *series.PriceSeries, entry, exit int) *Donchian {
	t.Helper()
	d, err := NewDonchian(s, strategy.Params{EntryWindow: entry, ExitWindow: exit, InitialCapital: 10000}, strategy.DefaultRules())
	require.NoError(t, err)
	return d
}

func TestDonchianEntryBreakout(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 10, 10, 15, 5)
	d := newDonchian(t, s, 2, 2)

	assert.False(t, d.EnterPosition(at(2)), "flat close is not a breakout")
	assert.True(t, d.EnterPosition(at(3)))
	assert.False(t, d.EnterPosition(at(4)))
}

func TestDonchianEntryNeedsHistory(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 10, 20)
	d := newDonchian(t, s, 2, 2)
	assert.False(t, d.EnterPosition(at(2)), "countBefore == entry window is insufficient")
}

func TestDonchianEntryVolumeFilter(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 999_999, 10, 10, 10, 15)
	d := newDonchian(t, s, 2, 2)
	assert.False(t, d.EnterPosition(at(3)))

	loose, err := NewDonchian(s, d.Params(), strategy.Rules{MinVolume: 1000, RiskFactor: 0.02})
	require.NoError(t, err)
	assert.True(t, loose.EnterPosition(at(3)))
}

func TestDonchianEntriesDisabled(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 10, 10, 15, 5)
	p := strategy.Params{EntryWindow: 2, ExitWindow: 2, InitialCapital: 10000}.Disable()
	d, err := NewDonchian(s, p, strategy.DefaultRules())
	require.NoError(t, err)

	assert.False(t, d.EnterPosition(at(3)))
	assert.True(t, d.ExitPosition(at(4)), "exits keep running when entries are disabled")
}

func TestDonchianExit(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 12, 11, 11, 13)
	d := newDonchian(t, s, 2, 2)

	assert.False(t, d.ExitPosition(at(2)), "countBefore == exit window is insufficient")
	assert.True(t, d.ExitPosition(at(3)), "close equal to channel low exits")
	assert.False(t, d.ExitPosition(at(4)))
}

func TestDonchianSizing(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 10, 10, 15, 5)
	d := newDonchian(t, s, 2, 2)

	stop, err := d.StopLossPrice(at(3))
	require.NoError(t, err)
	assert.Equal(t, 10.0, stop)

	size, err := d.PositionSize(at(3))
	require.NoError(t, err)
	assert.Equal(t, int64(40), size)
}

func TestDonchianUndefinedSizing(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 10, 10, 10, 8)
	d := newDonchian(t, s, 2, 2)

	_, err := d.PositionSize(at(3))
	assert.ErrorIs(t, err, domain.ErrUndefinedSizing)

	_, err = d.PositionSize(at(1))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestDonchianFactory(t *testing.T) {
	t.Parallel()
	s := buildSeries(t, 2_000_000, 1, 2, 3)
	f := DonchianFactory(strategy.DefaultRules())

	st, err := f(s, strategy.Params{EntryWindow: 10, ExitWindow: 2, InitialCapital: 10000})
	require.NoError(t, err)
	assert.Equal(t, "donchian", st.Name())

	_, err = f(s, strategy.Params{EntryWindow: 10, ExitWindow: 0, InitialCapital: 10000})
	assert.Error(t, err)
}
