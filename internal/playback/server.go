// Package playback streams produced clips to the local UI with byte-range
// support, so a player can seek without downloading the whole file.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the clip file is gone from disk.
var ErrNotFound = errors.New("clip file not found")

// Options controls how a clip is presented to the client.
type Options struct {
	// Download asks the browser to save the file instead of playing it.
	Download bool
}

type Server struct {
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	return &Server{logger: logger}
}

// ServeClip writes the file at path. Nothing is written when ErrNotFound is
// returned, so the caller can render its own error.
func (s *Server) ServeClip(w http.ResponseWriter, r *http.Request, path string, opts Options) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to open clip: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat clip: %w", err)
	}
	if stat.IsDir() || stat.Size() == 0 {
		return ErrNotFound
	}

	size := stat.Size()
	contentType := contentTypeFor(path)

	disposition := "inline"
	if opts.Download {
		disposition = "attachment"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filepath.Base(path)))
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	parsed, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the whole file is sent.
		parsed, err = nil, nil
	case err != nil:
		return err
	}

	start := time.Now()
	var sent int64
	if parsed == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			sent, err = io.Copy(w, file)
		}
	} else {
		h.Set("Content-Length", strconv.FormatInt(parsed.ContentLength(), 10))
		h.Set("Content-Range", parsed.ContentRange(size))
		w.WriteHeader(http.StatusPartialContent)
		if r.Method != http.MethodHead {
			if _, err := file.Seek(parsed.Start, io.SeekStart); err != nil {
				return fmt.Errorf("failed to seek: %w", err)
			}
			sent, err = io.CopyN(w, file, parsed.ContentLength())
		}
	}

	if err != nil {
		// Players abort requests routinely when seeking.
		s.logger.Debug("clip stream ended early", "file", filepath.Base(path), "sent", sent, "error", err)
		return nil
	}
	s.logger.Debug("clip served", "file", filepath.Base(path), "bytes", sent, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// contentTypeFor maps the formats the pipeline writes without consulting the
// system mime table.
func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
