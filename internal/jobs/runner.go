package jobs

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/fetch"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/progress"
	"github.com/clipforge/clipforge-agent/internal/session"
)

// Executor runs one job. *session.Orchestrator implements it.
type Executor interface {
	RunJob(ctx context.Context, st deps.Status, req session.Request, rep progress.Reporter) ([]clip.Result, error)
}

// DependencySource re-checks the external tools. *deps.CachedChecker
// implements it.
type DependencySource interface {
	Refresh() deps.Status
}

// ProgressHub hands out per-job reporters and the latest snapshot.
// *progress.Hub implements it.
type ProgressHub interface {
	ForJob(jobID string) *progress.JobReporter
	Snapshot() progress.Snapshot
}

type Runner struct {
	repo         Repository
	executor     Executor
	deps         DependencySource
	hub          ProgressHub
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
	wake         chan struct{}

	mu     sync.Mutex
	active string
}

func NewRunner(repo Repository, executor Executor, depSource DependencySource, hub ProgressHub, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		executor:     executor,
		deps:         depSource,
		hub:          hub,
		logger:       logging.WithComponent(logger, "job_runner"),
		pollInterval: 5 * time.Second,
		wake:         make(chan struct{}, 1),
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
		case <-r.wake:
		}
		// Drain the queue before waiting again.
		for !r.paused.Load() && ctx.Err() == nil && r.processNextJob(ctx) {
		}
	}
}

// Wake asks the runner to look for work now instead of at the next tick.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
	r.Wake()
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// ActiveJobID returns the id of the job being executed, if any.
func (r *Runner) ActiveJobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Runner) setActive(id string) {
	r.mu.Lock()
	r.active = id
	r.mu.Unlock()
}

// processNextJob runs the oldest pending job and reports whether one left
// the pending state.
func (r *Runner) processNextJob(ctx context.Context) bool {
	pending, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(pending) == 0 {
		return false
	}

	return r.runJob(ctx, pending[0])
}

func (r *Runner) runJob(ctx context.Context, job *Job) bool {
	log := logging.WithJobID(r.logger, job.ID)
	log.Info("processing job", "source", job.SourceURL, "clips", len(job.Request.Clips))

	r.setActive(job.ID)
	defer r.setActive("")

	// Final bookkeeping must land even when ctx is canceled at shutdown.
	store := context.WithoutCancel(ctx)

	if err := r.repo.UpdateJobStatus(store, job.ID, StatusRunning, ""); err != nil {
		log.Error("failed to mark job running", "error", err)
		return false
	}

	st := r.deps.Refresh()
	rep := &jobReporter{
		Reporter: r.hub.ForJob(job.ID),
		hub:      r.hub,
		repo:     r.repo,
		ctx:      store,
		jobID:    job.ID,
		logger:   log,
		lastPct:  -1,
	}

	results, runErr := r.executor.RunJob(ctx, st, job.Request, rep)

	for _, res := range results {
		cr := &ClipResult{
			JobID:           job.ID,
			ClipID:          res.ClipID,
			OutputPath:      res.OutputPath,
			DurationSeconds: res.DurationSeconds,
			CreatedAt:       time.Now(),
		}
		if err := r.repo.AddClipResult(store, cr); err != nil {
			log.Error("failed to store clip result", "clip_id", res.ClipID, "error", err)
		}
	}

	if runErr != nil {
		msg := runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			msg = "canceled"
		}
		if err := r.repo.UpdateJobStatus(store, job.ID, StatusFailed, msg); err != nil {
			log.Error("failed to mark job failed", "error", err)
		}
		log.Warn("job failed", "error", runErr, "produced", len(results))
		return true
	}

	if err := r.repo.UpdateJobProgress(store, job.ID, 100, "Download complete!"); err != nil {
		log.Warn("failed to store final progress", "error", err)
	}
	if err := r.repo.UpdateJobStatus(store, job.ID, StatusCompleted, ""); err != nil {
		log.Error("failed to mark job completed", "error", err)
	}
	log.Info("job completed", "produced", len(results))
	return true
}

// jobReporter forwards to the hub and mirrors the hub's progress snapshot
// into the jobs table whenever the whole-number percent changes.
type jobReporter struct {
	progress.Reporter
	hub     ProgressHub
	repo    Repository
	ctx     context.Context
	jobID   string
	logger  *slog.Logger
	lastPct int
}

func (j *jobReporter) Output(text string) {
	j.Reporter.Output(text)
	j.persist()
}

func (j *jobReporter) Error(text string) {
	j.Reporter.Error(text)
	j.persist()
}

func (j *jobReporter) SessionStarted(sessionID string) {
	if err := j.repo.UpdateJobSession(j.ctx, j.jobID, sessionID); err != nil {
		j.logger.Warn("failed to store session id", "error", err)
	}
}

func (j *jobReporter) MetadataResolved(md fetch.Metadata) {
	if err := j.repo.UpdateJobTitle(j.ctx, j.jobID, md.DisplayTitle); err != nil {
		j.logger.Warn("failed to store title", "error", err)
	}
}

func (j *jobReporter) persist() {
	snap := j.hub.Snapshot()
	if snap.JobID != j.jobID {
		return
	}
	pct := int(math.Round(snap.Percent))
	if pct == j.lastPct {
		return
	}
	j.lastPct = pct
	if err := j.repo.UpdateJobProgress(j.ctx, j.jobID, pct, snap.Phase); err != nil {
		j.logger.Debug("failed to store progress", "error", err)
	}
}
