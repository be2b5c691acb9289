// Package clip turns one clip request into one finished file: trim or copy
// from the downloaded source, probe the result, promote it to its final
// name and tag it.
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/process"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

// DefaultDurationSeconds is reported when the prober cannot measure a clip.
const DefaultDurationSeconds = 600

// State is a step of the per-clip state machine.
type State int

const (
	StatePending State = iota
	StateTrimming
	StateCopying
	StateDurationProbe
	StateMetadataTagging
	StateFinalized
	StateFailedAborted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateTrimming:
		return "trimming"
	case StateCopying:
		return "copying"
	case StateDurationProbe:
		return "duration_probe"
	case StateMetadataTagging:
		return "metadata_tagging"
	case StateFinalized:
		return "finalized"
	case StateFailedAborted:
		return "failed_aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Spec is one requested clip. Start and End are MM:SS or HH:MM:SS; when both
// are empty the full video is copied.
type Spec struct {
	ClipID int    `json:"clipId"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

// Input is everything the processor needs for one clip.
type Input struct {
	Spec           Spec
	SourcePath     string
	OutputDir      string
	SessionID      string
	FileTitle      string
	TranscoderPath string
	ProberPath     string
	Reporter       progress.Reporter
}

// Result describes a finalized clip.
type Result struct {
	ClipID          int     `json:"clipId"`
	OutputPath      string  `json:"filePath"`
	DurationSeconds float64 `json:"duration"`
}

// Timeouts are the watchdog windows applied to every ffmpeg/ffprobe run.
type Timeouts struct {
	Hang time.Duration
	Hard time.Duration
}

// Processor runs the per-clip pipeline.
type Processor struct {
	runner   process.Runner
	logger   *slog.Logger
	timeouts Timeouts
	retry    fsutil.Policy
	now      func() time.Time
}

func NewProcessor(runner process.Runner, logger *slog.Logger, timeouts Timeouts) *Processor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		runner:   runner,
		logger:   logger,
		timeouts: timeouts,
		retry:    fsutil.DefaultPolicy,
		now:      time.Now,
	}
}

// OutputPath is the final location of a clip.
func OutputPath(dir, sessionID string, clipID int) string {
	return filepath.Join(dir, fmt.Sprintf("%s_clip %d.mp4", sessionID, clipID))
}

type nopReporter struct{}

func (nopReporter) Output(string)                {}
func (nopReporter) Error(string)                 {}
func (nopReporter) Complete(progress.Completion) {}

// clipRun carries the mutable state of one Process call.
type clipRun struct {
	p     *Processor
	in    Input
	rep   progress.Reporter
	log   *slog.Logger
	stamp int64
	state State
	temp  string
}

// Process runs one clip to completion. Any error is a *ClipError; the
// caller is expected to continue with the remaining clips.
func (p *Processor) Process(ctx context.Context, in Input) (*Result, error) {
	rep := in.Reporter
	if rep == nil {
		rep = nopReporter{}
	}
	r := &clipRun{
		p:     p,
		in:    in,
		rep:   rep,
		log:   p.logger.With("clip_id", in.Spec.ClipID),
		stamp: p.now().UnixMilli(),
		state: StatePending,
	}

	res, err := r.run(ctx)
	if err != nil {
		failedIn := r.state
		r.state = StateFailedAborted
		r.cleanupTemp()
		r.log.Warn("clip failed", "state", failedIn.String(), "error", err)
		rep.Error(fmt.Sprintf("Clip %d failed during %s: %v", in.Spec.ClipID, failedIn, err))
		return nil, &ClipError{ClipID: in.Spec.ClipID, State: failedIn, Err: err}
	}
	return res, nil
}

func (r *clipRun) run(ctx context.Context) (*Result, error) {
	id := r.in.Spec.ClipID

	rng, warning, err := plan(r.in.Spec)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		r.log.Warn(warning)
		r.rep.Output(warning)
	}

	if rng != nil {
		r.state = StateTrimming
		if err := r.trim(ctx, *rng); err != nil {
			return nil, err
		}
	} else {
		r.state = StateCopying
		if err := r.copyFull(); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.state = StateDurationProbe
	duration := r.probe(ctx)
	r.rep.Output(progress.TrimmedDurationMarker(duration))

	output := OutputPath(r.in.OutputDir, r.in.SessionID, id)
	if err := fsutil.ReplaceFile(ctx, r.p.retry, r.temp, output); err != nil {
		return nil, fmt.Errorf("promote %s: %w", filepath.Base(r.temp), err)
	}
	r.temp = ""

	r.state = StateMetadataTagging
	r.tag(ctx, output)

	r.state = StateFinalized
	r.rep.Output(fmt.Sprintf("Final video duration for clip %d: %s", id, FormatOffset(int(math.Round(duration)))))
	r.log.Info("clip finalized", "output", filepath.Base(output), "duration_s", duration)

	return &Result{ClipID: id, OutputPath: output, DurationSeconds: duration}, nil
}

func (r *clipRun) trim(ctx context.Context, rng Range) error {
	id := r.in.Spec.ClipID
	dur := rng.Duration()
	r.temp = filepath.Join(r.in.OutputDir, fmt.Sprintf("trimmed_%s_clip%d_%d.mp4", r.in.FileTitle, id, r.stamp))

	r.rep.Output(fmt.Sprintf("Trimming video from %s to %s (clip %d)", FormatOffset(rng.Start), FormatOffset(rng.End), id))

	lastPct := -1
	out := r.p.runner.Run(ctx, process.Command{
		Label: "ffmpeg:trim",
		Path:  r.in.TranscoderPath,
		Args: []string{
			"-i", r.in.SourcePath,
			"-ss", FormatOffset(rng.Start),
			"-t", strconv.Itoa(dur),
			"-c:v", "libx264",
			"-c:a", "aac",
			"-preset", "fast",
			"-y", r.temp,
		},
		HangTimeout: r.p.timeouts.Hang,
		HardTimeout: r.p.timeouts.Hard,
		OnLine: func(l process.Line) {
			elapsed, ok := progress.ParseFFmpegTime(l.Text)
			if !ok {
				return
			}
			pct := int(math.Min(100, elapsed/float64(dur)*100))
			if pct != lastPct {
				lastPct = pct
				r.rep.Output(fmt.Sprintf("Trimming clip %d: %d%% complete", id, pct))
			}
		},
	})
	if !out.IsSuccess() {
		return fmt.Errorf("ffmpeg trim %s", out.Summary())
	}
	if !fsutil.NonEmptyFile(r.temp) {
		return errors.New("ffmpeg trim produced no output file")
	}

	r.rep.Output("Trimming completed successfully")
	return nil
}

func (r *clipRun) copyFull() error {
	id := r.in.Spec.ClipID
	if _, err := os.Stat(r.in.SourcePath); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceMissing, err)
	}

	r.temp = filepath.Join(r.in.OutputDir, fmt.Sprintf("copy_%s_clip%d_%d.mp4", r.in.FileTitle, id, r.stamp))
	r.rep.Output(fmt.Sprintf("No trim range for clip %d, copying full video", id))

	if err := fsutil.CopyFile(r.in.SourcePath, r.temp); err != nil {
		return fmt.Errorf("copy source: %w", err)
	}
	return nil
}

// probe measures the temp file. Failure is not fatal.
func (r *clipRun) probe(ctx context.Context) float64 {
	var stdout []string
	out := r.p.runner.Run(ctx, process.Command{
		Label: "ffprobe:duration",
		Path:  r.in.ProberPath,
		Args: []string{
			"-v", "warning",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			r.temp,
		},
		HangTimeout: r.p.timeouts.Hang,
		HardTimeout: r.p.timeouts.Hard,
		OnLine: func(l process.Line) {
			if l.Stream == process.Stdout {
				stdout = append(stdout, l.Text)
			}
		},
	})
	if out.IsSuccess() {
		for _, line := range stdout {
			if v, err := strconv.ParseFloat(strings.TrimSpace(line), 64); err == nil && v > 0 {
				return v
			}
		}
	}

	r.log.Warn("could not probe clip duration, using default",
		"status", out.Status.String(), "default_s", DefaultDurationSeconds)
	return DefaultDurationSeconds
}

// tag writes the title metadata. Failure keeps the untagged file in place.
func (r *clipRun) tag(ctx context.Context, output string) {
	id := r.in.Spec.ClipID
	tagged := filepath.Join(r.in.OutputDir, fmt.Sprintf("temp_metadata_clip%d_%d.mp4", id, r.stamp))

	r.rep.Output("Applying basic metadata")
	out := r.p.runner.Run(ctx, process.Command{
		Label: "ffmpeg:tag",
		Path:  r.in.TranscoderPath,
		Args: []string{
			"-i", output,
			"-metadata", fmt.Sprintf("title=clip %d", id),
			"-c:v", "copy",
			"-c:a", "copy",
			"-y", tagged,
		},
		HangTimeout: r.p.timeouts.Hang,
		HardTimeout: r.p.timeouts.Hard,
	})

	if !out.IsSuccess() || !fsutil.NonEmptyFile(tagged) {
		r.log.Warn("metadata tagging failed, keeping untagged clip", "status", out.Status.String())
		r.rep.Output(fmt.Sprintf("Metadata tagging skipped for clip %d, keeping untagged file", id))
		_ = fsutil.RemoveWithRetry(ctx, r.p.retry, tagged)
		return
	}

	if err := fsutil.ReplaceFile(ctx, r.p.retry, tagged, output); err != nil {
		r.log.Warn("could not replace clip with tagged copy", "error", err)
		_ = fsutil.RemoveWithRetry(ctx, r.p.retry, tagged)
		return
	}
	r.rep.Output("Metadata applied successfully")
}

func (r *clipRun) cleanupTemp() {
	if r.temp == "" {
		return
	}
	if err := os.Remove(r.temp); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Debug("could not remove temp clip", "path", filepath.Base(r.temp), "error", err)
	}
}
