// Package fsutil holds the filesystem operations the pipeline depends on:
// bounded retries for operations that race with external file locks, file
// copies that survive cross-volume moves, and small path helpers.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// Policy bounds a retried operation.
type Policy struct {
	Attempts int           // total attempts, including the first; values < 1 mean 1
	Delay    time.Duration // wait before the second attempt
	Backoff  float64       // multiplier applied to Delay after each retry; < 1 means constant
}

// DefaultPolicy is used for temp-file cleanup and output promotion:
// one retry after a short delay.
var DefaultPolicy = Policy{Attempts: 2, Delay: time.Second, Backoff: 2}

// Retry runs op until it succeeds, attempts are exhausted, or ctx is done.
// The returned error wraps the last failure.
func Retry(ctx context.Context, p Policy, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry interrupted after %d attempts: %w", attempt, errors.Join(lastErr, ctx.Err()))
			}
			if p.Backoff > 1 {
				delay = time.Duration(float64(delay) * p.Backoff)
			}
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

// RemoveWithRetry deletes path. A path that is already gone counts as success.
func RemoveWithRetry(ctx context.Context, p Policy, path string) error {
	return Retry(ctx, p, func() error {
		err := os.Remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
}

// ReplaceFile moves src over dst. When a plain rename fails (some platforms
// refuse to rename over an open or existing file) it removes dst first.
func ReplaceFile(ctx context.Context, p Policy, src, dst string) error {
	return Retry(ctx, p, func() error {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", dst, err)
		}
		return os.Rename(src, dst)
	})
}
