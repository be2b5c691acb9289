// Package fetch drives yt-dlp: title and duration lookups, and the single
// full-video download each job starts with.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/clipforge-agent/internal/process"
)

// DefaultDurationSeconds is used when the duration cannot be fetched. It
// keeps progress math finite.
const DefaultDurationSeconds = 600

var (
	ErrNoTitle    = errors.New("no usable title in fetcher output")
	ErrNoDuration = errors.New("no usable duration in fetcher output")
)

// Metadata is what a job learns about its source before downloading.
type Metadata struct {
	Title           string  `json:"title"`         // cleaned full title, used for tagging
	DisplayTitle    string  `json:"display_title"` // first words, for UI
	FileTitle       string  `json:"file_title"`    // sanitized basename
	DurationSeconds float64 `json:"duration_seconds"`
	TitleFound      bool    `json:"title_found"`
	DurationFound   bool    `json:"duration_found"`
}

// Fetcher queries metadata through yt-dlp.
type Fetcher struct {
	runner  process.Runner
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewFetcher creates a Fetcher. timeout bounds each metadata call; zero
// disables the ceiling.
func NewFetcher(runner process.Runner, logger *slog.Logger, timeout time.Duration) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{runner: runner, logger: logger, timeout: timeout, now: time.Now}
}

// FetchTitleAndDuration runs the title and duration lookups concurrently.
// Neither failure is fatal: the title falls back to a timestamped name and
// the duration to DefaultDurationSeconds.
func (f *Fetcher) FetchTitleAndDuration(ctx context.Context, fetcherPath, sourceURL string) Metadata {
	var (
		wg       sync.WaitGroup
		title    string
		titleErr error
		dur      float64
		durErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		title, titleErr = f.FetchTitle(ctx, fetcherPath, sourceURL)
	}()
	go func() {
		defer wg.Done()
		dur, durErr = f.FetchDuration(ctx, fetcherPath, sourceURL)
	}()
	wg.Wait()

	md := Metadata{
		Title:           title,
		DurationSeconds: dur,
		TitleFound:      titleErr == nil,
		DurationFound:   durErr == nil,
	}

	if titleErr != nil {
		f.logger.Warn("title unavailable, using synthetic name", "error", titleErr)
		md.Title = SyntheticTitle(f.now())
	}
	if durErr != nil {
		f.logger.Warn("duration unavailable, using default", "error", durErr, "default_s", DefaultDurationSeconds)
		md.DurationSeconds = DefaultDurationSeconds
	}

	md.DisplayTitle = DisplayTitle(md.Title)
	md.FileTitle = SanitizeFilename(md.Title)
	if md.FileTitle == "" {
		md.FileTitle = SyntheticTitle(f.now())
	}
	return md
}

// FetchTitle returns the cleaned title of sourceURL.
func (f *Fetcher) FetchTitle(ctx context.Context, fetcherPath, sourceURL string) (string, error) {
	var lines []string
	out := f.runner.Run(ctx, process.Command{
		Label:       "yt-dlp:title",
		Path:        fetcherPath,
		Args:        []string{"--get-title", sourceURL},
		HardTimeout: f.timeout,
		OnLine: func(l process.Line) {
			if l.Stream == process.Stdout {
				lines = append(lines, l.Text)
			}
		},
	})
	if !out.IsSuccess() {
		return "", fmt.Errorf("title lookup %s", out.Summary())
	}

	for _, line := range lines {
		if !usableTitleLine(line) {
			continue
		}
		if title := CleanTitle(line, sourceURL); title != "" {
			return title, nil
		}
	}
	return "", ErrNoTitle
}

// FetchDuration returns the duration of sourceURL in seconds.
func (f *Fetcher) FetchDuration(ctx context.Context, fetcherPath, sourceURL string) (float64, error) {
	var lines []string
	out := f.runner.Run(ctx, process.Command{
		Label: "yt-dlp:duration",
		Path:  fetcherPath,
		Args: []string{
			"--skip-download",
			"--print", "duration",
			"--extractor-args", "youtube:player_client=android,web",
			"--no-check-certificate",
			"--geo-bypass",
			"--extractor-retries", "3",
			"--progress",
			sourceURL,
		},
		HardTimeout: f.timeout,
		OnLine: func(l process.Line) {
			if l.Stream == process.Stdout {
				lines = append(lines, l.Text)
			}
		},
	})
	if !out.IsSuccess() {
		return 0, fmt.Errorf("duration lookup %s", out.Summary())
	}

	for _, line := range lines {
		if d, ok := parseDuration(line); ok {
			return d, nil
		}
	}
	return 0, ErrNoDuration
}

// parseDuration accepts a bare positive decimal ("213", "213.5").
func parseDuration(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
