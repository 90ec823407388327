package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"turtle/internal/gather"
	"turtle/internal/gather/us"
	"turtle/internal/store"
)

var alpacaCommand = &cli.Command{
	Name:  "alpaca",
	Usage: "download US daily bars from Alpaca into the bar store",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "start", Usage: "first date (YYYY-MM-DD), overrides gather.start_date"},
		&cli.StringFlag{Name: "end", Usage: "last date (YYYY-MM-DD); defaults to the latest finished trading day"},
	},
	Action: gatherAlpaca,
}

func gatherAlpaca(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		return fmt.Errorf("alpaca credentials are not configured")
	}

	symbols, err := us.Universe(cfg.Gather.Symbols, cfg.Gather.SymbolsFile)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols configured (gather.symbols or gather.symbols_file)")
	}

	startStr := cfg.Gather.StartDate
	if v := c.String("start"); v != "" {
		startStr = v
	}
	start, err := time.Parse(time.DateOnly, startStr)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", startStr, err)
	}

	endStr := cfg.Gather.EndDate
	if v := c.String("end"); v != "" {
		endStr = v
	}
	var end time.Time
	if endStr != "" {
		if end, err = time.Parse(time.DateOnly, endStr); err != nil {
			return fmt.Errorf("invalid end date %q: %w", endStr, err)
		}
	} else {
		cal := us.NewCalendarClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
		if end, err = us.LatestFinishedTradingDay(cal, time.Now()); err != nil {
			return err
		}
	}

	client := us.NewBarsClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL)
	g := us.NewDailyBarGatherer(client, store.NewParquetStore(cfg.Storage.DataDir), us.Config{
		Symbols:         symbols,
		Dates:           gather.DateRange{Start: start, End: end},
		BatchSize:       cfg.Gather.BatchSize,
		MaxWorkers:      cfg.Gather.MaxWorkers,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		ProgressDir:     filepath.Join(cfg.Storage.DataDir, "us", "daily"),
	}, logger)
	return runGatherer(c, g, logger)
}
