// Command turtle runs the walk-forward Donchian breakout backtest and
// imports the daily bars it runs on.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"turtle/internal/config"
	"turtle/internal/gather"
	"turtle/internal/util"
)

const (
	defaultConfigPath = "config/turtle.yaml"
	defaultDataDir    = "data"
)

func main() {
	app := cli.NewApp()
	app.Name = "turtle"
	app.Usage = "walk-forward Donchian channel breakout backtester"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   defaultConfigPath,
			Usage:   "path to the YAML configuration file",
			EnvVars: []string{"TURTLE_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "override the configured log level (debug, info, warn, error)",
		},
	}
	app.Commands = []*cli.Command{
		runCommand,
		ingestCommand,
		alpacaCommand,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the configuration named by the global flags and installs the
// configured logger as the slog default.
func setup(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaultDataDir
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	return cfg, logger, nil
}

func runGatherer(c *cli.Context, g gather.Gatherer, logger *slog.Logger) error {
	fmt.Printf("starting %s gatherer\n", g.Name())
	began := time.Now()
	if err := g.Run(c.Context); err != nil {
		return fmt.Errorf("%s: %w", g.Name(), err)
	}
	logger.Info("gatherer finished", "name", g.Name(), "elapsed", time.Since(began).Round(time.Millisecond))
	return nil
}
