package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"turtle/internal/config"
	"turtle/internal/domain"
	"turtle/internal/engine"
	"turtle/internal/gather/feed"
	"turtle/internal/report"
	"turtle/internal/series"
	"turtle/internal/store"
	"turtle/internal/strategy"
	"turtle/internal/strategy/builtins"
	"turtle/internal/walkforward"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the monthly walk-forward backtest",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "first date (YYYY-MM-DD), overrides backtest.start_date"},
		&cli.StringFlag{Name: "end", Usage: "last date (YYYY-MM-DD), overrides backtest.end_date"},
		&cli.StringFlag{Name: "feed", Usage: "read bars from this quote feed file instead of the bar store"},
		&cli.StringFlag{Name: "filter", Usage: "instrument list, one code per line"},
		&cli.IntFlag{Name: "workers", Usage: "parallel grid trials (default GOMAXPROCS)"},
		&cli.BoolFlag{Name: "no-save", Usage: "do not write results to SQLite"},
		&cli.BoolFlag{Name: "report", Usage: "send reports to the collector even if report.enabled is false"},
	},
	Action: runBacktest,
}

func runBacktest(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	bt := &cfg.Backtest
	if v := c.String("start"); v != "" {
		bt.StartDate = v
	}
	if v := c.String("end"); v != "" {
		bt.EndDate = v
	}
	if v := c.Int("workers"); v > 0 {
		bt.Workers = v
	}
	start, end, err := bt.Range()
	if err != nil {
		return err
	}
	market := domain.Market(bt.Market)

	list, err := loadSeries(c, cfg, market, end, logger)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return fmt.Errorf("no instruments with data")
	}
	logger.Info("loaded instruments", "count", len(list), "market", market)

	factory := builtins.DonchianFactory(strategy.Rules{MinVolume: bt.MinVolume, RiskFactor: bt.RiskFactor})
	portfolio, err := engine.NewPortfolio(list, decimal.NewFromFloat(bt.InitialCapital), factory, logger)
	if err != nil {
		return err
	}
	optimizer, err := walkforward.NewOptimizer(factory, bt.InitialCapital,
		walkforward.WithGrid(walkforward.Grid{EntryMin: bt.EntryMin, EntryMax: bt.EntryMax, ExitMin: bt.ExitMin, ExitMax: bt.ExitMax}),
		walkforward.WithWorkers(bt.Workers),
		walkforward.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	began := time.Now()
	result, err := optimizer.Run(c.Context, portfolio, start, end)
	if err != nil {
		return err
	}
	logger.Info("walk-forward done", "months", len(result.Months), "elapsed", time.Since(began).Round(time.Millisecond))
	fmt.Printf("Final balance: %s\n", result.FinalBalance.StringFixed(2))

	if cfg.Storage.SQLitePath != "" && !c.Bool("no-save") {
		rs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer rs.Close()
		id, err := saveResults(c.Context, rs, market, start, end, portfolio, result)
		if err != nil {
			return fmt.Errorf("saving results: %w", err)
		}
		logger.Info("results saved", "run", id, "db", cfg.Storage.SQLitePath)
	}

	if cfg.Report.Enabled || c.Bool("report") {
		pub := report.NewPublisher(cfg.Report.Host, cfg.Report.Ports, cfg.Report.IndexPrefix, logger)
		if err := pub.Publish(c.Context, portfolio); err != nil {
			return err
		}
		logger.Info("reports generated")
	}
	return nil
}

// loadSeries reads the instruments from the quote feed when one is given and
// from the bar store otherwise, restricted to the filter list if any. Without
// a filter every instrument found is loaded.
func loadSeries(c *cli.Context, cfg *config.Config, market domain.Market, end time.Time, logger *slog.Logger) ([]*series.PriceSeries, error) {
	filterPath := cfg.Gather.FilterFile
	if v := c.String("filter"); v != "" {
		filterPath = v
	}
	var codes []string
	if filterPath != "" {
		var err error
		if codes, err = feed.LoadFilter(filterPath); err != nil {
			return nil, err
		}
	}

	feedPath := cfg.Gather.FeedFile
	if v := c.String("feed"); v != "" {
		feedPath = v
	}
	if feedPath != "" {
		return feed.LoadSeries(feedPath, codes, logger)
	}
	bars := store.NewParquetStore(cfg.Storage.DataDir)
	return store.LoadSeries(c.Context, bars, market, codes, time.Time{}, end, logger)
}
