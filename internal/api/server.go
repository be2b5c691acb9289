package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/fetch"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/progress"
	"github.com/clipforge/clipforge-agent/internal/session"
)

// JobService is the queue the handlers submit to. *jobs.Service implements it.
type JobService interface {
	Submit(ctx context.Context, req session.Request) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	List(ctx context.Context, limit int) ([]*jobs.Job, error)
	ClipFile(ctx context.Context, jobID string, clipID int) (string, error)
}

// QueueControl is implemented by *jobs.Runner.
type QueueControl interface {
	Pause()
	Resume()
	IsPaused() bool
	ActiveJobID() string
}

// EventSource is implemented by *progress.Hub.
type EventSource interface {
	Subscribe() (<-chan progress.Event, func())
	Snapshot() progress.Snapshot
}

// DependencyStatus is implemented by *deps.CachedChecker.
type DependencyStatus interface {
	Get() deps.Status
	Refresh() deps.Status
}

// LocationStore is implemented by *settings.Store.
type LocationStore interface {
	GetDownloadLocation(ctx context.Context) string
	SaveDownloadLocation(ctx context.Context, path string) bool
}

// MetadataLookup is implemented by *fetch.Fetcher.
type MetadataLookup interface {
	FetchTitleAndDuration(ctx context.Context, fetcherPath, sourceURL string) fetch.Metadata
}

// ClipServer streams a produced clip. *playback.Server implements it.
type ClipServer interface {
	ServeClip(w http.ResponseWriter, r *http.Request, path string, opts playback.Options) error
}

// TokenStore holds the bearer token. jobs.Repository implements it.
type TokenStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port       int
	Version    string
	Jobs       JobService
	Runner     QueueControl
	Hub        EventSource
	Deps       DependencyStatus
	Settings   LocationStore
	Metadata   MetadataLookup
	Playback   ClipServer
	Repository TokenStore
	Logger     *slog.Logger
	StartTime  time.Time
	DeviceID   string
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:     router,
			ReadTimeout: 15 * time.Second,
			// Zero so /events and clip downloads are not cut off.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
