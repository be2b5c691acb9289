package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/clipforge-agent/internal/session"
)

var ErrNotFound = errors.New("job not found")

// DownloadLocator supplies the output directory for requests that omit one.
type DownloadLocator interface {
	GetDownloadLocation(ctx context.Context) string
}

type Service struct {
	repo     Repository
	settings DownloadLocator
	logger   *slog.Logger
	notify   func()
}

func NewService(repo Repository, settings DownloadLocator, logger *slog.Logger) *Service {
	return &Service{repo: repo, settings: settings, logger: logger}
}

// OnSubmit registers a callback invoked after every accepted job, used to
// wake the runner.
func (s *Service) OnSubmit(fn func()) {
	s.notify = fn
}

// Submit validates req and queues it. Validation failures wrap
// session.ErrInvalidRequest.
func (s *Service) Submit(ctx context.Context, req session.Request) (*Job, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	if req.OutputDirectory == "" && s.settings != nil {
		req.OutputDirectory = s.settings.GetDownloadLocation(ctx)
	}
	if req.OutputDirectory == "" {
		return nil, fmt.Errorf("%w: no download location configured", session.ErrInvalidRequest)
	}

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		SourceURL: req.SourceURL,
		OutputDir: req.OutputDirectory,
		Status:    StatusPending,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("clip job queued", "job_id", job.ID, "clips", len(req.Clips), "output_dir", job.OutputDir)
	}
	if s.notify != nil {
		s.notify()
	}
	return job, nil
}

// Get returns the job with its clip results.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}

	clips, err := s.repo.ListClipResults(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Clips = clips
	return job, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Job, error) {
	return s.repo.ListJobs(ctx, limit)
}

// ClipFile returns the output path of one produced clip.
func (s *Service) ClipFile(ctx context.Context, jobID string, clipID int) (string, error) {
	clips, err := s.repo.ListClipResults(ctx, jobID)
	if err != nil {
		return "", err
	}
	for _, c := range clips {
		if c.ClipID == clipID {
			return c.OutputPath, nil
		}
	}
	return "", ErrNotFound
}
