package session

import (
	"errors"
	"fmt"

	"github.com/clipforge/clipforge-agent/internal/fetch"
)

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDependenciesMissing = errors.New("required tools missing")
	ErrOutputDir           = errors.New("output directory unavailable")
	ErrDownloadFailed      = fetch.ErrDownloadFailed
	ErrNoClipsProduced     = errors.New("no clips were produced")
)

// Stage names used in StageError.
const (
	StageDependencies = "dependencies"
	StageOutputDir    = "output_dir"
	StageDownload     = "download"
	StageClips        = "clips"
)

// StageError is a job-fatal failure tagged with the stage it happened in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
