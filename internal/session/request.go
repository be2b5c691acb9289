package session

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/clipforge/clipforge-agent/internal/clip"
)

// Request is one clip job as submitted by a caller.
type Request struct {
	SourceURL       string      `json:"sourceUrl"`
	OutputDirectory string      `json:"downloadLocation,omitempty"`
	Clips           []clip.Spec `json:"clips,omitempty"`
}

// Normalize validates the request and fills defaults in place: an empty
// clip list becomes a single full-video clip and non-positive clip ids are
// assigned the lowest unused ids. Offsets are validated later, per clip.
func (r *Request) Normalize() error {
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	if err := validateSourceURL(r.SourceURL); err != nil {
		return err
	}

	if dir := strings.TrimSpace(r.OutputDirectory); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("%w: output directory: %v", ErrInvalidRequest, err)
		}
		r.OutputDirectory = filepath.Clean(abs)
	} else {
		r.OutputDirectory = ""
	}

	if len(r.Clips) == 0 {
		r.Clips = []clip.Spec{{ClipID: 1}}
		return nil
	}

	used := make(map[int]bool, len(r.Clips))
	for _, c := range r.Clips {
		if c.ClipID <= 0 {
			continue
		}
		if used[c.ClipID] {
			return fmt.Errorf("%w: duplicate clip id %d", ErrInvalidRequest, c.ClipID)
		}
		used[c.ClipID] = true
	}

	next := 1
	for i := range r.Clips {
		c := &r.Clips[i]
		c.Start = strings.TrimSpace(c.Start)
		c.End = strings.TrimSpace(c.End)
		if c.ClipID > 0 {
			continue
		}
		for used[next] {
			next++
		}
		c.ClipID = next
		used[next] = true
	}
	return nil
}

func validateSourceURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: source URL is required", ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: source URL: %v", ErrInvalidRequest, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: source URL must be http or https", ErrInvalidRequest)
	}
	return nil
}
