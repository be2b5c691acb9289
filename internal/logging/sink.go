package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink receives every subprocess and progress line tagged with its source.
type Sink interface {
	Append(label, line string)
}

// FileSink is an append-only log file. Each entry is written as
// "<RFC3339 UTC timestamp> - [label] line".
type FileSink struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// NewFileSink opens (or creates) the log file at path for appending.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileSink{w: f, now: time.Now}, nil
}

func (s *FileSink) Append(label, line string) {
	line = strings.TrimRight(line, "\r\n")
	ts := s.now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return
	}
	if label == "" {
		fmt.Fprintf(s.w, "%s - %s\n", ts, line)
		return
	}
	fmt.Fprintf(s.w, "%s - [%s] %s\n", ts, label, line)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

// Discard is a Sink that drops everything.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Append(string, string) {}
