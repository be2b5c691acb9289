package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/progress"
	"github.com/clipforge/clipforge-agent/internal/settings"
	"github.com/clipforge/clipforge-agent/internal/ui"
)

var serveHeadless bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local agent: HTTP API, job queue and system tray",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveHeadless)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray")
}

func runServe(headless bool) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if headless {
		cfg.SetHeadless(true)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting clipforge agent", "version", config.Version, "data_dir", cfg.DataDir())

	sink, err := logging.NewFileSink(cfg.LogPath())
	if err != nil {
		return fmt.Errorf("failed to open progress log: %w", err)
	}
	defer sink.Close()

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := jobs.NewRepository(database.Conn())

	deviceID, err := ensureDeviceID(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	printBanner(cfg.Port(), authToken, deviceID)

	store := settings.NewStore(repo, settings.DefaultDownloadDir(cfg.DownloadDir()), logging.WithComponent(logger, "settings"))
	hub := progress.NewHub(nil, sink, logging.WithComponent(logger, "progress"))
	pipe := newPipeline(cfg, sink, logger)

	if st := pipe.deps.Refresh(); !st.Ready() {
		logger.Warn("external tools missing, jobs will fail until installed", "missing", st.Missing())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := jobs.NewRunner(repo, pipe.orchestrator, pipe.deps, hub, logger)
	jobSvc := jobs.NewService(repo, store, logging.WithComponent(logger, "jobs"))
	jobSvc.OnSubmit(runner.Wake)
	go runner.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Version:    config.Version,
		Jobs:       jobSvc,
		Runner:     runner,
		Hub:        hub,
		Deps:       pipe.deps,
		Settings:   store,
		Metadata:   pipe.fetcher,
		Playback:   playback.NewServer(logging.WithComponent(logger, "playback")),
		Repository: repo,
		Logger:     logging.WithComponent(logger, "api"),
		StartTime:  startTime,
		DeviceID:   deviceID,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Runner:   runner,
			Hub:      hub,
			Settings: store,
			Logger:   logging.WithComponent(logger, "tray"),
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func printBanner(port int, authToken, deviceID string) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                  CLIPFORGE AGENT v%-24s║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", port)
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func ensureDeviceID(repo jobs.Repository) (string, error) {
	return ensureSecret(repo, "device_id", 16)
}

func ensureAuthToken(repo jobs.Repository) (string, error) {
	return ensureSecret(repo, api.AuthTokenKey, 32)
}

// ensureSecret returns the stored value for key, generating and saving a
// random hex string of n bytes on first run.
func ensureSecret(repo jobs.Repository, key string, n int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}

	return value, nil
}
