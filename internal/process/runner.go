package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipforge/clipforge-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxLineBytes   = 1024 * 1024

	// killGrace bounds how long readers may keep draining after a kill.
	// A grandchild (yt-dlp spawning ffmpeg) can hold the pipes open.
	killGrace = 2 * time.Second
)

// Config holds the runner's configuration.
type Config struct {
	Logger     *slog.Logger
	Sink       logging.Sink // durable log; nil discards
	DebugPaths bool         // if true, log full file paths; otherwise sanitise
}

// SubprocessRunner is the production implementation of Runner.
type SubprocessRunner struct {
	cfg Config
}

// NewRunner creates a SubprocessRunner.
func NewRunner(cfg Config) *SubprocessRunner {
	if cfg.Sink == nil {
		cfg.Sink = logging.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SubprocessRunner{cfg: cfg}
}

// Run spawns the command and blocks until it exits, is killed by a
// watchdog, or ctx is done.
func (r *SubprocessRunner) Run(ctx context.Context, c Command) Outcome {
	start := time.Now()
	label := c.Label
	if label == "" {
		label = filepath.Base(c.Path)
	}
	logger := r.cfg.Logger.With("tool", label)

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailed(logger, label, err, start)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailed(logger, label, err, start)
	}

	logger.Debug("executing command",
		"path", r.safePath(c.Path),
		"args", c.Args,
		"hang_timeout", c.HangTimeout,
		"hard_timeout", c.HardTimeout,
	)

	if err := cmd.Start(); err != nil {
		return r.spawnFailed(logger, label, err, start)
	}

	var lastActivity atomic.Int64
	lastActivity.Store(time.Now().UnixNano())

	var stderrBuf bytes.Buffer
	tail := &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	var mu sync.Mutex
	emit := func(stream Stream, text string) {
		lastActivity.Store(time.Now().UnixNano())
		mu.Lock()
		defer mu.Unlock()
		if stream == Stderr {
			tail.Write([]byte(text + "\n"))
		}
		r.cfg.Sink.Append(label, text)
		if c.OnLine != nil {
			c.OnLine(Line{Stream: stream, Text: text})
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		scanPipe(stdout, Stdout, emit)
	}()
	go func() {
		defer readers.Done()
		scanPipe(stderr, Stderr, emit)
	}()
	readDone := make(chan struct{})
	go func(done chan<- struct{}) {
		readers.Wait()
		close(done)
	}(readDone)

	var hardC, tickC, graceC <-chan time.Time
	if c.HardTimeout > 0 {
		hard := time.NewTimer(c.HardTimeout)
		defer hard.Stop()
		hardC = hard.C
	}
	if c.HangTimeout > 0 {
		tick := time.NewTicker(watchInterval(c.HangTimeout))
		defer tick.Stop()
		tickC = tick.C
	}
	ctxDone := ctx.Done()

	killed := false
	var verdict Status
	kill := func(s Status) {
		killed = true
		verdict = s
		hardC, tickC, ctxDone = nil, nil, nil
		graceC = time.After(killGrace)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warn("failed to kill process", "error", err)
		}
	}

	var waitErr error
	waitDone := make(chan struct{})

wait:
	for {
		select {
		case <-readDone:
			// Wait may only start once the pipes are drained. The child can
			// outlive its pipes, so the watchdogs stay armed until it exits.
			readDone = nil
			go func() {
				waitErr = cmd.Wait()
				close(waitDone)
			}()
		case <-waitDone:
			break wait
		case <-hardC:
			logger.Warn("process exceeded wall-clock limit", "limit", c.HardTimeout)
			kill(StatusTimedOut)
		case <-tickC:
			idle := time.Since(time.Unix(0, lastActivity.Load()))
			if idle >= c.HangTimeout {
				logger.Warn("process produced no output, assuming hung", "idle", idle.Round(time.Millisecond))
				kill(StatusHung)
			}
		case <-ctxDone:
			kill(StatusCanceled)
		case <-graceC:
			// Unblock readers held open by orphaned grandchildren.
			stdout.Close()
			stderr.Close()
			graceC = nil
		}
	}

	mu.Lock()
	stderrTail := stderrBuf.String()
	mu.Unlock()

	out := Outcome{
		ExitCode:   0,
		StderrTail: stderrTail,
		Duration:   time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case killed:
		out.Status = verdict
		out.ExitCode = -1
		out.Err = waitErr
	case waitErr == nil:
		out.Status = StatusSuccess
	case errors.As(waitErr, &exitErr):
		out.Status = StatusNonZeroExit
		out.ExitCode = exitErr.ExitCode()
	default:
		out.Status = StatusNonZeroExit
		out.ExitCode = -1
		out.Err = waitErr
	}

	if out.IsSuccess() {
		logger.Info("command succeeded", "duration_ms", out.Duration.Milliseconds())
	} else {
		logger.Warn("command failed",
			"status", out.Status.String(),
			"exit_code", out.ExitCode,
			"duration_ms", out.Duration.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	}

	return out
}

func (r *SubprocessRunner) spawnFailed(logger *slog.Logger, label string, err error, start time.Time) Outcome {
	logger.Error("failed to start command", "error", err)
	r.cfg.Sink.Append(label, "failed to start: "+err.Error())
	return Outcome{
		Status:     StatusSpawnFailure,
		ExitCode:   -1,
		Err:        err,
		StderrTail: err.Error(),
		Duration:   time.Since(start),
	}
}

func (r *SubprocessRunner) safePath(path string) string {
	if r.cfg.DebugPaths {
		return path
	}
	return logging.SanitizePath(path)
}

// scanPipe feeds non-empty lines to emit until EOF. If a line overflows the
// scanner buffer the rest of the pipe is drained so the child never blocks
// on a full pipe.
func scanPipe(rd io.Reader, stream Stream, emit func(Stream, string)) {
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	sc.Split(scanLinesWithCR)
	for sc.Scan() {
		text := string(bytes.TrimSpace(sc.Bytes()))
		if text == "" {
			continue
		}
		emit(stream, text)
	}
	if sc.Err() != nil {
		io.Copy(io.Discard, rd)
	}
}

// scanLinesWithCR splits on either '\n' or '\r'. ffmpeg and yt-dlp redraw
// progress in place with carriage returns.
func scanLinesWithCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func watchInterval(hang time.Duration) time.Duration {
	iv := hang / 4
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	if iv > time.Second {
		iv = time.Second
	}
	return iv
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
