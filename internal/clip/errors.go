package clip

import (
	"errors"
	"fmt"
)

// ErrSourceMissing means the downloaded source vanished before a copy.
var ErrSourceMissing = errors.New("source video missing")

// ClipError reports which clip failed and in which state. It never aborts
// sibling clips.
type ClipError struct {
	ClipID int
	State  State
	Err    error
}

func (e *ClipError) Error() string {
	return fmt.Sprintf("clip %d failed during %s: %v", e.ClipID, e.State, e.Err)
}

func (e *ClipError) Unwrap() error { return e.Err }
