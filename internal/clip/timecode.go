package clip

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultClipSeconds replaces a range whose end is not after its start.
const DefaultClipSeconds = 30

// ErrInvalidOffset is returned for offsets that are not MM:SS or HH:MM:SS.
var ErrInvalidOffset = errors.New("invalid offset")

var offsetRe = regexp.MustCompile(`^([0-9]{2}:)?[0-5][0-9]:[0-5][0-9]$`)

// ParseOffset converts MM:SS or HH:MM:SS into seconds.
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	if !offsetRe.MatchString(s) {
		return 0, fmt.Errorf("%w: %q (want MM:SS or HH:MM:SS)", ErrInvalidOffset, s)
	}

	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatOffset renders seconds as HH:MM:SS when there is an hour component,
// MM:SS otherwise.
func FormatOffset(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Range is a resolved trim window in whole seconds.
type Range struct {
	Start int
	End   int
}

func (r Range) Duration() int { return r.End - r.Start }

// ResolveRange builds a Range, forcing a DefaultClipSeconds window when end
// is not after start. adjusted reports whether that happened.
func ResolveRange(start, end int) (r Range, adjusted bool) {
	if end <= start {
		return Range{Start: start, End: start + DefaultClipSeconds}, true
	}
	return Range{Start: start, End: end}, false
}

// plan decides between trimming and copying for one clip. A nil range means
// the full source is copied; warning is non-empty when the request was
// adjusted on the way.
func plan(spec Spec) (rng *Range, warning string, err error) {
	start := strings.TrimSpace(spec.Start)
	end := strings.TrimSpace(spec.End)

	switch {
	case start == "" && end == "":
		return nil, "", nil
	case start == "" || end == "":
		return nil, fmt.Sprintf("Clip %d has only one of start/end set, copying the full video", spec.ClipID), nil
	}

	s, err := ParseOffset(start)
	if err != nil {
		return nil, "", fmt.Errorf("start: %w", err)
	}
	e, err := ParseOffset(end)
	if err != nil {
		return nil, "", fmt.Errorf("end: %w", err)
	}

	r, adjusted := ResolveRange(s, e)
	if adjusted {
		warning = fmt.Sprintf("End time must be after start time for clip %d, using %s to %s",
			spec.ClipID, FormatOffset(r.Start), FormatOffset(r.End))
	}
	return &r, warning, nil
}
