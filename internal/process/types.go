// Package process runs external tools (yt-dlp, ffmpeg, ffprobe) as
// subprocesses, streaming their output line by line and enforcing the
// inactivity and wall-clock watchdogs.
package process

import (
	"context"
	"fmt"
	"time"
)

// Runner executes one external command to completion.
// It is the single implementation of the subprocess contract used by the
// fetch, clip and deps packages.
type Runner interface {
	Run(ctx context.Context, cmd Command) Outcome
}

// Stream identifies which pipe a line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one line of subprocess output with its terminator stripped.
type Line struct {
	Stream Stream
	Text   string
}

// Command describes a single invocation. Args are passed to the executable
// verbatim; nothing is interpreted by a shell.
type Command struct {
	Label string // source tag written to the durable log; defaults to the binary name
	Path  string
	Args  []string
	Dir   string
	Env   []string // extra KEY=VALUE pairs appended to the parent environment

	// OnLine receives every output line before Run returns. Calls are
	// serialized, so the callback does not need its own locking.
	OnLine func(Line)

	// HangTimeout kills the process when no line arrives within the window.
	// HardTimeout kills it once the wall-clock ceiling elapses. Zero disables.
	HangTimeout time.Duration
	HardTimeout time.Duration
}

// Status is the terminal classification of a run.
type Status int

const (
	StatusSuccess Status = iota
	StatusNonZeroExit
	StatusSpawnFailure
	StatusTimedOut
	StatusHung
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusNonZeroExit:
		return "non_zero_exit"
	case StatusSpawnFailure:
		return "spawn_failure"
	case StatusTimedOut:
		return "timed_out"
	case StatusHung:
		return "hung"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the structured result of executing a subprocess.
type Outcome struct {
	Status     Status        `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Err        error         `json:"-"`                     // spawn or wait error, if any
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (o Outcome) IsSuccess() bool { return o.Status == StatusSuccess }

// Summary renders the outcome for error messages and log lines.
func (o Outcome) Summary() string {
	switch o.Status {
	case StatusSuccess:
		return "exited 0"
	case StatusNonZeroExit:
		if tail := truncate(o.StderrTail, 256); tail != "" {
			return fmt.Sprintf("exited %d: %s", o.ExitCode, tail)
		}
		return fmt.Sprintf("exited %d", o.ExitCode)
	case StatusSpawnFailure:
		return fmt.Sprintf("failed to start: %v", o.Err)
	case StatusTimedOut:
		return fmt.Sprintf("killed after exceeding wall-clock limit (%s)", o.Duration.Round(time.Second))
	case StatusHung:
		return "killed after producing no output"
	case StatusCanceled:
		return "canceled"
	default:
		return o.Status.String()
	}
}
