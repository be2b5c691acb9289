package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/logging"
	"github.com/clipforge/clipforge-agent/internal/progress"
	"github.com/clipforge/clipforge-agent/internal/session"
	"github.com/clipforge/clipforge-agent/internal/settings"
)

var (
	runClips   []string
	runOutDir  string
	runVerbose bool
)

var runCmd = &cobra.Command{
	Use:   "run <url>",
	Short: "Download a video and cut clips in the foreground",
	Long: `Runs one job without the agent, printing the progress stream.

Clips are given as id:start-end, for example --clip 1:00:10-00:40.
A bare id copies the whole video, as does a job without any --clip.`,
	Example: `  clipforge run https://example.com/watch?v=abc --clip 1:00:10-00:40 --clip 2:01:00:00-01:00:30
  clipforge run https://example.com/watch?v=abc --out ~/Videos`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs := make([]clip.Spec, 0, len(runClips))
		for _, raw := range runClips {
			spec, err := parseClipFlag(raw)
			if err != nil {
				return err
			}
			specs = append(specs, spec)
		}
		return runOnce(cmd.Context(), cmd.OutOrStdout(), args[0], specs)
	},
}

func init() {
	runCmd.Flags().StringArrayVar(&runClips, "clip", nil, "clip as id:start-end (repeatable)")
	runCmd.Flags().StringVarP(&runOutDir, "out", "o", "", "output directory (default: $CLIPFORGE_DOWNLOAD_DIR or ~/Downloads)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print structured logs to stderr")
}

// parseClipFlag accepts "id" or "id:start-end". Offsets may themselves
// contain colons, so only the first colon separates the id.
func parseClipFlag(raw string) (clip.Spec, error) {
	raw = strings.TrimSpace(raw)
	idPart, rangePart, hasRange := strings.Cut(raw, ":")

	id, err := strconv.Atoi(idPart)
	if err != nil || id <= 0 {
		return clip.Spec{}, fmt.Errorf("invalid --clip %q: want a positive id, optionally followed by :start-end", raw)
	}
	if !hasRange {
		return clip.Spec{ClipID: id}, nil
	}

	start, end, found := strings.Cut(rangePart, "-")
	if !found {
		return clip.Spec{}, fmt.Errorf("invalid --clip %q: want id:start-end", raw)
	}
	for _, off := range []string{start, end} {
		if _, err := clip.ParseOffset(off); err != nil {
			return clip.Spec{}, fmt.Errorf("invalid --clip %q: %w", raw, err)
		}
	}
	return clip.Spec{ClipID: id, Start: strings.TrimSpace(start), End: strings.TrimSpace(end)}, nil
}

func runOnce(ctx context.Context, out io.Writer, sourceURL string, specs []clip.Spec) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if runVerbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logging.ParseLevel(cfg.LogLevel())}))
	}

	var sink logging.Sink = logging.Discard
	if fileSink, err := logging.NewFileSink(cfg.LogPath()); err != nil {
		logger.Warn("progress log unavailable", "error", err)
	} else {
		defer fileSink.Close()
		sink = fileSink
	}

	dir := runOutDir
	if dir == "" {
		dir = settings.DefaultDownloadDir(cfg.DownloadDir())
	}

	req := session.Request{SourceURL: sourceURL, OutputDirectory: dir, Clips: specs}
	if err := req.Normalize(); err != nil {
		return err
	}

	pipe := newPipeline(cfg, sink, logger)
	hub := progress.NewHub(nil, sink, logger)

	events, release := hub.Subscribe()
	done := make(chan struct{})
	r := newRenderer(out)
	go func() {
		defer close(done)
		for ev := range events {
			r.render(ev)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, runErr := pipe.orchestrator.RunJob(ctx, pipe.deps.Refresh(), req, hub.ForJob("cli"))
	release()
	<-done

	if len(results) > 0 {
		fmt.Fprintln(out)
		for _, res := range results {
			size := "?"
			if n, err := fsutil.FileSize(res.OutputPath); err == nil {
				size = humanize.Bytes(uint64(n))
			}
			fmt.Fprintln(out, r.summaryLine(res, size))
		}
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("canceled after %d clip(s)", len(results))
		}
		return runErr
	}
	return nil
}
