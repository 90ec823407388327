package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"turtle/internal/domain"
	"turtle/internal/gather"
	"turtle/internal/series"
	"turtle/internal/store"
)

var _ gather.Gatherer = (*Gatherer)(nil)

// ReadBars parses a quote feed and groups its bars by instrument code. When
// codes is non-empty only those instruments are kept.
func ReadBars(r io.Reader, codes []string) (map[string][]domain.Bar, error) {
	var keep map[string]struct{}
	if len(codes) > 0 {
		keep = make(map[string]struct{}, len(codes))
		for _, c := range codes {
			keep[c] = struct{}{}
		}
	}

	out := make(map[string][]domain.Bar)
	err := Parse(r, func(rec Record) error {
		if keep != nil {
			if _, ok := keep[rec.Code]; !ok {
				return nil
			}
		}
		out[rec.Code] = append(out[rec.Code], rec.Bar())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadSeries builds price series for codes from the feed file at path, in
// the order of codes. Instruments absent from the feed are dropped. An empty
// codes list loads every instrument, ordered by code.
func LoadSeries(path string, codes []string, log *slog.Logger) ([]*series.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()

	grouped, err := ReadBars(f, codes)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(codes) == 0 {
		for code := range grouped {
			codes = append(codes, code)
		}
		sort.Strings(codes)
	}

	var out []*series.PriceSeries
	for _, code := range codes {
		bars, ok := grouped[code]
		if !ok {
			log.Warn("instrument not in feed, dropping it", "symbol", code)
			continue
		}
		s, err := series.New(code, bars)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Gatherer imports a quote feed file into a bar store.
type Gatherer struct {
	path   string
	codes  []string
	market domain.Market
	store  store.BarStore
	log    *slog.Logger
}

// NewGatherer creates a Gatherer writing the bars of codes (all instruments
// when empty) found in the feed at path into bs under market.
func NewGatherer(path string, codes []string, market domain.Market, bs store.BarStore, log *slog.Logger) *Gatherer {
	if log == nil {
		log = slog.Default()
	}
	return &Gatherer{
		path:   path,
		codes:  codes,
		market: market,
		store:  bs,
		log:    log.With("gatherer", "feed"),
	}
}

// Name returns the gatherer identifier.
func (g *Gatherer) Name() string { return "feed" }

// Run parses the feed and writes one batch per instrument.
func (g *Gatherer) Run(ctx context.Context) error {
	f, err := os.Open(g.path)
	if err != nil {
		return fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()

	grouped, err := ReadBars(f, g.codes)
	if err != nil {
		return fmt.Errorf("reading %s: %w", g.path, err)
	}

	codes := make([]string, 0, len(grouped))
	for code := range grouped {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	total := 0
	for _, code := range codes {
		if err := ctx.Err(); err != nil {
			return err
		}
		bars := grouped[code]
		if err := g.store.WriteBars(ctx, g.market, bars); err != nil {
			return fmt.Errorf("storing %s: %w", code, err)
		}
		total += len(bars)
		g.log.Debug("stored instrument", "symbol", code, "bars", len(bars))
	}

	g.log.Info("feed imported", "file", g.path, "instruments", len(codes), "bars", total)
	return nil
}
