// Package session runs one clip job end to end: dependency gate, output
// directory, metadata, a single download, then every requested clip in
// order.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/fetch"
	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

type MetadataFetcher interface {
	FetchTitleAndDuration(ctx context.Context, fetcherPath, sourceURL string) fetch.Metadata
}

type VideoDownloader interface {
	Download(ctx context.Context, fetcherPath, sourceURL, dest string, rep progress.Reporter) error
}

type ClipProcessor interface {
	Process(ctx context.Context, in clip.Input) (*clip.Result, error)
}

// Observer is optionally implemented by a Reporter that wants the facts a
// job learns along the way, for example to persist them.
type Observer interface {
	SessionStarted(sessionID string)
	MetadataResolved(md fetch.Metadata)
}

// Orchestrator sequences one job. It holds no per-job state and may be
// reused, but jobs are expected to run one at a time.
type Orchestrator struct {
	fetcher    MetadataFetcher
	downloader VideoDownloader
	processor  ClipProcessor
	logger     *slog.Logger
	retry      fsutil.Policy

	newSessionID func() (string, error)
}

func NewOrchestrator(fetcher MetadataFetcher, downloader VideoDownloader, processor ClipProcessor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		fetcher:      fetcher,
		downloader:   downloader,
		processor:    processor,
		logger:       logger,
		retry:        fsutil.DefaultPolicy,
		newSessionID: NewSessionID,
	}
}

// NewSessionID returns a random 7-digit identifier used to namespace the
// files of one job.
func NewSessionID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000))
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return strconv.FormatInt(n.Int64()+1_000_000, 10), nil
}

// RunJob executes req against the tools described by st. The request must
// already be normalized. Clip failures are reported and skipped; the job
// fails only when a shared stage fails or no clip was produced. On success
// the returned slice holds one result per produced clip, in request order.
func (o *Orchestrator) RunJob(ctx context.Context, st deps.Status, req Request, rep progress.Reporter) ([]clip.Result, error) {
	if rep == nil {
		rep = discardReporter{}
	}
	obs, _ := rep.(Observer)

	rep.Output("Script running")

	sessionID, err := o.newSessionID()
	if err != nil {
		return nil, err
	}
	log := logging.WithSessionID(o.logger, sessionID)
	if obs != nil {
		obs.SessionStarted(sessionID)
	}
	log.Info("job started", "source", req.SourceURL, "clips", len(req.Clips))

	rep.Output("Checking dependencies")
	if !st.Ready() {
		for _, msg := range st.ErrorMessages {
			rep.Error(msg)
		}
		err := fmt.Errorf("%w: %s", ErrDependenciesMissing, strings.Join(st.Missing(), ", "))
		log.Error("dependency check failed", "missing", st.Missing())
		return nil, &StageError{Stage: StageDependencies, Err: err}
	}

	dir := req.OutputDirectory
	rep.Output("Download location: " + dir)
	if dir == "" {
		rep.Error("No download location configured")
		return nil, &StageError{Stage: StageOutputDir, Err: ErrOutputDir}
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		rep.Error(fmt.Sprintf("Cannot create download location: %v", err))
		return nil, &StageError{Stage: StageOutputDir, Err: fmt.Errorf("%w: %w", ErrOutputDir, err)}
	}

	rep.Output("Fetching metadata for " + req.SourceURL)
	md := o.fetcher.FetchTitleAndDuration(ctx, st.FetcherPath, req.SourceURL)
	if md.TitleFound {
		rep.Output("Got title: " + md.DisplayTitle)
	} else {
		rep.Output("Could not fetch title, using " + md.Title)
	}
	if fetch.IsXURL(req.SourceURL) {
		rep.Output("Cleaning X title")
	}
	rep.Output("Using title for file: " + md.FileTitle)
	if obs != nil {
		obs.MetadataResolved(md)
	}

	temp := filepath.Join(dir, fmt.Sprintf("%s_%s_temp.mp4", md.FileTitle, sessionID))
	defer o.removeTemp(ctx, log, temp)

	rep.Output("Downloading video to " + temp)
	if err := o.downloader.Download(ctx, st.FetcherPath, req.SourceURL, temp, rep); err != nil {
		rep.Error(fmt.Sprintf("Download failed: %v", err))
		log.Error("download failed", "error", err)
		return nil, &StageError{Stage: StageDownload, Err: err}
	}
	if size, err := fsutil.FileSize(temp); err == nil {
		rep.Output(fmt.Sprintf("Download completed successfully (%s)", humanize.Bytes(uint64(size))))
	} else {
		rep.Output("Download completed successfully")
	}

	results := make([]clip.Result, 0, len(req.Clips))
	for i, spec := range req.Clips {
		if ctx.Err() != nil {
			break
		}
		rep.Output(fmt.Sprintf("%s %d of %d...", progress.ClipStartPhrase, i+1, len(req.Clips)))

		res, err := o.processor.Process(ctx, clip.Input{
			Spec:           spec,
			SourcePath:     temp,
			OutputDir:      dir,
			SessionID:      sessionID,
			FileTitle:      md.FileTitle,
			TranscoderPath: st.TranscoderPath,
			ProberPath:     st.ProberPath,
			Reporter:       rep,
		})
		if err != nil {
			log.Warn("clip skipped", "clip_id", spec.ClipID, "error", err)
			continue
		}
		results = append(results, *res)
	}

	if err := ctx.Err(); err != nil {
		log.Warn("job canceled", "produced", len(results))
		return results, &StageError{Stage: StageClips, Err: err}
	}
	if len(results) == 0 {
		rep.Error("No clips were produced")
		return nil, &StageError{Stage: StageClips, Err: ErrNoClipsProduced}
	}

	last := results[len(results)-1]
	rep.Complete(progress.Completion{
		FilePath:   last.OutputPath,
		Duration:   last.DurationSeconds,
		TotalClips: len(results),
	})
	rep.Output("Download finished")
	log.Info("job finished", "produced", len(results), "requested", len(req.Clips))

	return results, nil
}

// removeTemp runs even when the job was canceled, so it detaches from ctx.
func (o *Orchestrator) removeTemp(ctx context.Context, log *slog.Logger, temp string) {
	if err := fsutil.RemoveWithRetry(context.WithoutCancel(ctx), o.retry, temp); err != nil {
		log.Warn("could not remove downloaded source", "path", logging.SanitizePath(temp), "error", err)
	}
}

type discardReporter struct{}

func (discardReporter) Output(string)                {}
func (discardReporter) Error(string)                 {}
func (discardReporter) Complete(progress.Completion) {}
