// Package settings persists the user's download location.
package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/clipforge/clipforge-agent/internal/fsutil"
)

// KeyDownloadLocation is the config table key for the download location.
const KeyDownloadLocation = "download_location"

// ConfigStore is the key-value persistence the store sits on.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Store reads and writes the download location. Without a working
// ConfigStore it keeps the value in memory for the life of the process.
type Store struct {
	repo       ConfigStore
	defaultDir string
	logger     *slog.Logger

	mu     sync.Mutex
	memory string
}

// NewStore creates a Store. repo may be nil.
func NewStore(repo ConfigStore, defaultDir string, logger *slog.Logger) *Store {
	return &Store{repo: repo, defaultDir: defaultDir, logger: logger}
}

// DefaultDownloadDir picks configured first, then ~/Downloads, then the
// working directory.
func DefaultDownloadDir(configured string) string {
	if configured != "" {
		return configured
	}
	if dir, err := fsutil.HomeDownloadsDir(); err == nil {
		return dir
	}
	if abs, err := filepath.Abs("."); err == nil {
		return abs
	}
	return "."
}

// GetDownloadLocation returns the saved location if it still exists on disk,
// otherwise the default.
func (s *Store) GetDownloadLocation(ctx context.Context) string {
	if saved := s.load(ctx); saved != "" && fsutil.DirExists(saved) {
		return saved
	}
	return s.defaultDir
}

// SaveDownloadLocation stores path. It reports false for an empty or
// unresolvable path.
func (s *Store) SaveDownloadLocation(ctx context.Context, path string) bool {
	path = strings.TrimSpace(path)
	if path == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	s.mu.Lock()
	s.memory = abs
	s.mu.Unlock()

	if s.repo == nil {
		return true
	}
	if err := s.repo.SetConfig(ctx, KeyDownloadLocation, abs); err != nil {
		s.warn("could not persist download location, keeping it in memory", err)
	}
	return true
}

func (s *Store) load(ctx context.Context) string {
	if s.repo != nil {
		v, err := s.repo.GetConfig(ctx, KeyDownloadLocation)
		if err == nil && v != "" {
			return v
		}
		if err != nil {
			s.warn("could not read download location", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

func (s *Store) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "error", err)
	}
}
