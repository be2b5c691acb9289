package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/process"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

// ErrDownloadFailed means the fetcher did not leave a usable file behind.
var ErrDownloadFailed = errors.New("download failed")

// formatSelector prefers a single 1080p-or-lower mp4 and falls back to
// merging separate streams, then to any mp4.
const formatSelector = "[height<=1080][ext=mp4]/bestvideo[height<=1080][ext=mp4]+bestaudio/best[height<=1080][ext=mp4]/best[ext=mp4]"

// Downloader fetches the full source video once per job.
type Downloader struct {
	runner process.Runner
	logger *slog.Logger
}

func NewDownloader(runner process.Runner, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Downloader{runner: runner, logger: logger}
}

// DownloadArgs builds the yt-dlp argument list for a download to dest.
func DownloadArgs(sourceURL, dest string) []string {
	return []string{
		"-f", formatSelector,
		"--merge-output-format", "mp4",
		"--no-mtime",
		"--no-check-certificate",
		"--geo-bypass",
		"--ignore-errors",
		"--force-overwrites",
		"--retry-sleep", "5",
		"--extractor-args", "youtube:player_client=android,web",
		"--extractor-retries", "3",
		"--newline",
		"-o", dest,
		sourceURL,
	}
}

// Download writes sourceURL to dest. Fetcher output is forwarded to rep as
// it arrives. The run has no timeouts: large videos legitimately take long
// and yt-dlp retries internally. Success requires a clean exit and a
// non-empty file at dest.
func (d *Downloader) Download(ctx context.Context, fetcherPath, sourceURL, dest string, rep progress.Reporter) error {
	out := d.runner.Run(ctx, process.Command{
		Label: "yt-dlp:download",
		Path:  fetcherPath,
		Args:  DownloadArgs(sourceURL, dest),
		OnLine: func(l process.Line) {
			forwardDownloadLine(l, rep)
		},
	})

	if !out.IsSuccess() {
		d.logger.Error("download failed", "status", out.Status.String(), "exit_code", out.ExitCode)
		if out.Status == process.StatusCanceled {
			return fmt.Errorf("%w: %w", ErrDownloadFailed, context.Canceled)
		}
		return fmt.Errorf("%w: yt-dlp %s", ErrDownloadFailed, out.Summary())
	}

	if !fsutil.NonEmptyFile(dest) {
		return fmt.Errorf("%w: yt-dlp exited 0 but %s is missing or empty", ErrDownloadFailed, dest)
	}
	return nil
}

func forwardDownloadLine(l process.Line, rep progress.Reporter) {
	text := strings.TrimSpace(l.Text)
	if text == "" || rep == nil {
		return
	}
	if l.Stream == process.Stderr && strings.Contains(text, "ERROR") {
		rep.Error(text)
		return
	}
	rep.Output(text)
}
