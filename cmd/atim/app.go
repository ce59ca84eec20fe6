package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/atim-assistant/atim/internal/analyzer"
	"github.com/atim-assistant/atim/internal/config"
	"github.com/atim-assistant/atim/internal/credentials"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/github"
	"github.com/atim-assistant/atim/internal/proposals"
	"github.com/atim-assistant/atim/internal/publisher"
	"github.com/atim-assistant/atim/internal/scanner"
	"github.com/atim-assistant/atim/internal/storage"
)

// app is the wired pipeline for one CLI invocation.
type app struct {
	cfg        config.Config
	history    *events.History
	client     *github.Client
	resolver   *credentials.Resolver
	ledger     storage.Ledger
	analyzer   *analyzer.Analyzer
	controller *proposals.Controller
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	owner, name, err := config.SplitRepository(cfg.Repository)
	if err != nil {
		return nil, err
	}

	history := events.NewHistory(cfg.HistorySize, logger)
	client := github.NewClient(&github.Config{
		APIURL:  cfg.APIURL,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})

	resolver, err := credentials.FromConfig(cfg, client, history, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to set up credentials: %w", err)
	}

	az := analyzer.NewDefault()
	if cfg.RulesFile != "" {
		catalog, err := analyzer.LoadCatalog(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		az, err = az.WithCatalog(catalog)
		if err != nil {
			return nil, err
		}
	}

	ledger, err := storage.NewLedger(ctx, &storage.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sc, err := scanner.New(&scanner.Config{
		Remote:      client,
		Credentials: resolver,
		Owner:       owner,
		Repo:        name,
		Recorder:    history,
		Logger:      logger,
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	pub, err := publisher.New(&publisher.Config{
		Creator:     client,
		Credentials: resolver,
		Ledger:      ledger,
		Owner:       owner,
		Repo:        name,
		// credential exchange plus create-issue, each bounded by the request timeout
		Timeout:  3 * cfg.RequestTimeout(),
		Recorder: history,
		Logger:   logger,
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	filter := scanner.DefaultFilter()
	filter.Extensions = cfg.ScanExtensions
	filter.MaxFiles = cfg.ScanMaxFiles
	filter.MaxFileBytes = cfg.ScanMaxFileBytes

	ctl, err := proposals.NewController(&proposals.Config{
		Scanner:    sc,
		Analyzer:   az,
		Publisher:  pub,
		Stats:      proposals.NewRemoteStats(client, resolver, owner, name),
		Ledger:     ledger,
		Filter:     &filter,
		Repository: cfg.Repository,
		History:    history,
		Logger:     logger,
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	return &app{
		cfg:        cfg,
		history:    history,
		client:     client,
		resolver:   resolver,
		ledger:     ledger,
		analyzer:   az,
		controller: ctl,
	}, nil
}

func (a *app) Close() error {
	return a.ledger.Close()
}
