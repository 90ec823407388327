package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"turtle/internal/domain"
	"turtle/internal/series"
)

// LoadSeries reads and validates the price series of symbols from bs.
// Symbols without bars in [start, end] are skipped with a warning. An empty
// symbols list loads every symbol stored for market.
func LoadSeries(ctx context.Context, bs BarStore, market domain.Market, symbols []string, start, end time.Time, log *slog.Logger) ([]*series.PriceSeries, error) {
	if len(symbols) == 0 {
		var err error
		if symbols, err = bs.ListSymbols(ctx, market); err != nil {
			return nil, fmt.Errorf("listing %s symbols: %w", market, err)
		}
	}

	var out []*series.PriceSeries
	for _, sym := range symbols {
		sym = strings.ToUpper(sym)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := bs.ReadBars(ctx, sym, market, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			log.Warn("no bars for instrument, dropping it", "symbol", sym, "market", market)
			continue
		}
		s, err := series.New(sym, bars)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
