// Package us gathers daily bars for US equities from the Alpaca market data
// API into the bar store.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/sync/errgroup"

	"turtle/internal/domain"
	"turtle/internal/gather"
	"turtle/internal/store"
	"turtle/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// barsClient is the part of the Alpaca market data client used here.
type barsClient interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// NewBarsClient returns an Alpaca market data client.
func NewBarsClient(apiKey, apiSecret, dataURL string) *marketdata.Client {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return marketdata.NewClient(opts)
}

// DailyBarGatherer fetches daily bars for a fixed symbol universe in batches
// and writes them to the bar store. Runs are resumable per end date.
type DailyBarGatherer struct {
	client      barsClient
	store       store.BarStore
	symbols     []string
	dates       gather.DateRange
	batchSize   int
	maxWorkers  int
	limiter     *util.RateLimiter
	progressDir string
	log         *slog.Logger
}

// Config holds the DailyBarGatherer parameters.
type Config struct {
	Symbols         []string
	Dates           gather.DateRange
	BatchSize       int
	MaxWorkers      int
	RateLimitPerMin int
	ProgressDir     string // where resume state lives; empty disables resuming
}

// NewDailyBarGatherer creates a DailyBarGatherer.
func NewDailyBarGatherer(client barsClient, bs store.BarStore, cfg Config, log *slog.Logger) *DailyBarGatherer {
	if log == nil {
		log = slog.Default()
	}
	g := &DailyBarGatherer{
		client:      client,
		store:       bs,
		symbols:     cfg.Symbols,
		dates:       cfg.Dates,
		batchSize:   max(cfg.BatchSize, 1),
		maxWorkers:  max(cfg.MaxWorkers, 1),
		progressDir: cfg.ProgressDir,
		log:         log.With("gatherer", "us-daily"),
	}
	if cfg.RateLimitPerMin > 0 {
		g.limiter = util.NewRateLimiter(cfg.RateLimitPerMin)
	}
	return g
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches every symbol not yet gathered for the end date.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("us-daily: no symbols configured")
	}
	if g.dates.End.Before(g.dates.Start) {
		return fmt.Errorf("us-daily: end %s before start %s",
			g.dates.End.Format(time.DateOnly), g.dates.Start.Format(time.DateOnly))
	}
	endDate := g.dates.End.Format(time.DateOnly)

	var tracker *progressTracker
	if g.progressDir != "" {
		var err error
		tracker, err = newProgressTracker(g.progressDir, endDate)
		if err != nil {
			return fmt.Errorf("creating progress tracker: %w", err)
		}
		defer tracker.Close()
		if tracker.IsCompleted() {
			g.log.Info("already completed", "endDate", endDate)
			return nil
		}
	}

	var remaining []string
	for _, sym := range g.symbols {
		if tracker != nil && tracker.IsDone(sym) {
			continue
		}
		remaining = append(remaining, sym)
	}

	var batches [][]string
	for i := 0; i < len(remaining); i += g.batchSize {
		batches = append(batches, remaining[i:min(i+g.batchSize, len(remaining))])
	}

	g.log.Info("starting us-daily",
		"start", g.dates.Start.Format(time.DateOnly),
		"endDate", endDate,
		"total", len(g.symbols),
		"remaining", len(remaining),
		"batches", len(batches),
	)
	runStart := time.Now()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.maxWorkers)
	for i, batch := range batches {
		eg.Go(func() error {
			bars, err := g.fetchBatch(ctx, batch)
			if err != nil {
				return fmt.Errorf("batch %d/%d: %w", i+1, len(batches), err)
			}

			hits := make(map[string]struct{})
			for _, b := range bars {
				hits[b.Symbol] = struct{}{}
			}
			if len(bars) > 0 {
				if err := g.store.WriteBars(ctx, domain.MarketUS, bars); err != nil {
					return fmt.Errorf("writing batch %d/%d: %w", i+1, len(batches), err)
				}
			}
			if tracker != nil {
				if err := tracker.MarkDone(batch, hits); err != nil {
					return err
				}
			}

			g.log.Info("batch done",
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"hits", len(hits),
				"empty", len(batch)-len(hits),
				"bars", len(bars),
				"elapsed", time.Since(runStart).Round(time.Second),
			)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if tracker != nil {
		if err := tracker.MarkCompleted(); err != nil {
			return fmt.Errorf("marking completed: %w", err)
		}
		hits, empty := tracker.Counts()
		g.log.Info("complete", "hits", hits, "empty", empty, "elapsed", time.Since(runStart).Round(time.Second))
	}
	return nil
}

// fetchBatch fetches daily bars for symbols in one API call, waiting on the
// rate limiter and retrying transient failures.
func (g *DailyBarGatherer) fetchBatch(ctx context.Context, symbols []string) ([]domain.Bar, error) {
	var multiBars map[string][]marketdata.Bar
	err := util.Retry(ctx, 3, time.Second, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
		}
		var err error
		multiBars, err = g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     g.dates.Start,
			End:       g.dates.End.AddDate(0, 0, 1),
			Feed:      "sip",
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}
	return toBars(multiBars), nil
}

// toBars converts Alpaca bars to daily bars keyed on the session date.
func toBars(multiBars map[string][]marketdata.Bar) []domain.Bar {
	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol: strings.ToUpper(symbol),
				Date:   sessionDate(ab.Timestamp),
				Open:   ab.Open,
				High:   ab.High,
				Low:    ab.Low,
				Close:  ab.Close,
				Volume: float64(ab.Volume),
			})
		}
	}
	return bars
}

// sessionDate maps an Alpaca daily bar timestamp (midnight ET, reported in
// UTC) to its trading date.
func sessionDate(ts time.Time) time.Time {
	if et, err := time.LoadLocation("America/New_York"); err == nil {
		ts = ts.In(et)
	}
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
