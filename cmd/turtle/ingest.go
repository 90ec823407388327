package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"turtle/internal/domain"
	"turtle/internal/gather/feed"
	"turtle/internal/store"
)

var ingestCommand = &cli.Command{
	Name:      "ingest",
	Usage:     "import a fixed-width quote feed file into the bar store",
	ArgsUsage: "[feed file]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "filter", Usage: "instrument list, one code per line"},
		&cli.StringFlag{Name: "market", Value: string(domain.MarketBR), Usage: "market the bars are stored under"},
	},
	Action: ingest,
}

func ingest(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	path := cfg.Gather.FeedFile
	if c.Args().Present() {
		path = c.Args().First()
	}
	if path == "" {
		return fmt.Errorf("no feed file given and gather.feed_file is not set")
	}

	filterPath := cfg.Gather.FilterFile
	if v := c.String("filter"); v != "" {
		filterPath = v
	}
	var codes []string
	if filterPath != "" {
		if codes, err = feed.LoadFilter(filterPath); err != nil {
			return err
		}
	}

	g := feed.NewGatherer(path, codes, domain.Market(c.String("market")), store.NewParquetStore(cfg.Storage.DataDir), logger)
	return runGatherer(c, g, logger)
}
