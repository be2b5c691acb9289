package main

import (
	"log/slog"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/fetch"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/process"
	"github.com/clipforge/clipforge-agent/internal/session"
)

// pipeline is everything a job needs, shared by serve and run.
type pipeline struct {
	deps         *deps.CachedChecker
	fetcher      *fetch.Fetcher
	orchestrator *session.Orchestrator
}

func newPipeline(cfg config.Config, sink logging.Sink, logger *slog.Logger) *pipeline {
	checker := deps.NewChecker(deps.Locations{
		BinDir:     cfg.BinDir(),
		Fetcher:    cfg.YtDlpPath(),
		Transcoder: cfg.FFmpegPath(),
		Prober:     cfg.FFprobePath(),
	})
	cached := deps.NewCachedChecker(checker, logging.WithComponent(logger, "deps"))

	runner := process.NewRunner(process.Config{
		Logger: logging.WithComponent(logger, "process"),
		Sink:   sink,
	})

	fetcher := fetch.NewFetcher(runner, logging.WithComponent(logger, "fetch"), cfg.FetchTimeout())
	downloader := fetch.NewDownloader(runner, logging.WithComponent(logger, "download"))
	processor := clip.NewProcessor(runner, logging.WithComponent(logger, "clip"), clip.Timeouts{
		Hang: cfg.HangTimeout(),
		Hard: cfg.HardTimeout(),
	})

	return &pipeline{
		deps:         cached,
		fetcher:      fetcher,
		orchestrator: session.NewOrchestrator(fetcher, downloader, processor, logging.WithComponent(logger, "session")),
	}
}
