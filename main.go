package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/llehouerou/attune/internal/catalog"
	"github.com/llehouerou/attune/internal/config"
	"github.com/llehouerou/attune/internal/discovery"
	"github.com/llehouerou/attune/internal/slskd"
	"github.com/llehouerou/attune/internal/wishlist"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load configuration", "err", err)
	}

	store, err := catalog.Open(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("open catalog", "err", err, "path", cfg.Database.Path)
	}

	var daemon *slskd.Client
	if cfg.HasSoulseekConfig() {
		sk := cfg.GetSoulseekConfig()
		daemon = slskd.NewClient(sk.URL, sk.APIKey, logger)
	}

	var discover *discovery.Service
	if cfg.HasLastfmConfig() {
		discover = discovery.New(store, cfg.Lastfm.APIKey, cfg.Lastfm.APISecret, logger)
	}

	runner := NewRunner(RunnerOpts{
		Config:    cfg,
		Logger:    logger,
		Catalog:   store,
		Daemon:    daemon,
		Wishes:    wishlist.New(store, daemon, cfg, logger),
		Discovery: discover,
	})

	app := &cli.Command{
		Name:     "attune",
		Usage:    "Keep media server playlists in tune with remote playlist exports",
		Version:  "1.0.0",
		Commands: runner.register(),
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Fatal("command failed", "err", err)
	}
}
