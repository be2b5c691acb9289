package deps

import (
	"log/slog"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// StatusChecker is satisfied by Checker and by test fakes.
type StatusChecker interface {
	Check() Status
}

// CachedChecker caches the last Status with a TTL so status endpoints and
// the tray don't stat the filesystem on every poll. The job runner calls
// Refresh before each job.
type CachedChecker struct {
	checker StatusChecker
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	cached    *Status
	checkedAt time.Time
}

func NewCachedChecker(checker StatusChecker, logger *slog.Logger) *CachedChecker {
	return &CachedChecker{
		checker: checker,
		ttl:     defaultCacheTTL,
		logger:  logger,
	}
}

// Get returns the cached status if fresh, otherwise re-checks.
func (c *CachedChecker) Get() Status {
	c.mu.RLock()
	if c.cached != nil && time.Since(c.checkedAt) < c.ttl {
		st := *c.cached
		c.mu.RUnlock()
		return st
	}
	c.mu.RUnlock()

	return c.Refresh()
}

// Peek returns the cached status without probing. ok is false when nothing
// has been checked yet.
func (c *CachedChecker) Peek() (st Status, checkedAt time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cached == nil {
		return Status{}, time.Time{}, false
	}
	return *c.cached, c.checkedAt, true
}

// Refresh forces a new check regardless of cache freshness.
func (c *CachedChecker) Refresh() Status {
	st := c.checker.Check()

	c.mu.Lock()
	c.cached = &st
	c.checkedAt = time.Now()
	c.mu.Unlock()

	if c.logger != nil {
		if st.Ready() {
			c.logger.Debug("dependency check passed",
				"yt_dlp", st.FetcherPath,
				"ffmpeg", st.TranscoderPath,
				"ffprobe", st.ProberPath,
			)
		} else {
			c.logger.Warn("dependencies missing", "missing", st.Missing(), "errors", st.ErrorMessages)
		}
	}
	return st
}

// Invalidate clears the cached status.
func (c *CachedChecker) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}
