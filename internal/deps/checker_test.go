package deps

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func newTestChecker(loc Locations, onPath map[string]string) *Checker {
	c := NewChecker(loc)
	c.goos = "linux"
	c.lookPath = func(name string) (string, error) {
		if p, ok := onPath[name]; ok {
			return p, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
	return c
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestCheck_AllInBinDir(t *testing.T) {
	bin := t.TempDir()
	for _, name := range []string{FetcherName, TranscoderName, ProberName} {
		touch(t, filepath.Join(bin, name))
	}

	st := newTestChecker(Locations{BinDir: bin}, nil).Check()
	if !st.Ready() {
		t.Fatalf("Ready() = false, errors = %v", st.ErrorMessages)
	}
	if st.FetcherPath != filepath.Join(bin, FetcherName) {
		t.Errorf("FetcherPath = %q", st.FetcherPath)
	}
	if len(st.ErrorMessages) != 0 {
		t.Errorf("ErrorMessages = %v", st.ErrorMessages)
	}
}

func TestCheck_FallsBackToPath(t *testing.T) {
	bin := t.TempDir()
	touch(t, filepath.Join(bin, FetcherName))

	st := newTestChecker(Locations{BinDir: bin}, map[string]string{
		TranscoderName: "/usr/bin/ffmpeg",
		ProberName:     "/usr/bin/ffprobe",
	}).Check()

	if !st.Ready() {
		t.Fatalf("Ready() = false, errors = %v", st.ErrorMessages)
	}
	if st.TranscoderPath != "/usr/bin/ffmpeg" {
		t.Errorf("TranscoderPath = %q", st.TranscoderPath)
	}
}

func TestCheck_ReportsMissing(t *testing.T) {
	bin := t.TempDir()
	touch(t, filepath.Join(bin, TranscoderName))

	st := newTestChecker(Locations{BinDir: bin}, nil).Check()
	if st.Ready() {
		t.Fatal("Ready() = true with missing tools")
	}
	if !reflect.DeepEqual(st.Missing(), []string{FetcherName, ProberName}) {
		t.Errorf("Missing() = %v", st.Missing())
	}
	if len(st.ErrorMessages) != 2 {
		t.Errorf("ErrorMessages = %v, want 2 entries", st.ErrorMessages)
	}
	if st.FetcherPath != filepath.Join(bin, FetcherName) {
		t.Errorf("FetcherPath should name the expected location, got %q", st.FetcherPath)
	}
}

func TestCheck_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "custom-yt-dlp")
	touch(t, explicit)

	st := newTestChecker(Locations{Fetcher: explicit}, map[string]string{FetcherName: "/usr/bin/yt-dlp"}).Check()
	if st.FetcherPath != explicit || !st.FetcherAvailable {
		t.Errorf("FetcherPath = %q available = %v", st.FetcherPath, st.FetcherAvailable)
	}
}

func TestCheck_ExplicitPathMissingDoesNotFallBack(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	st := newTestChecker(Locations{Fetcher: missing}, map[string]string{FetcherName: "/usr/bin/yt-dlp"}).Check()
	if st.FetcherAvailable {
		t.Error("misconfigured explicit path should not silently fall back to PATH")
	}
}

func TestCheck_WindowsExecutableName(t *testing.T) {
	bin := t.TempDir()
	touch(t, filepath.Join(bin, "ffmpeg.exe"))

	c := newTestChecker(Locations{BinDir: bin}, nil)
	c.goos = "windows"
	st := c.Check()
	if !st.TranscoderAvailable {
		t.Errorf("ffmpeg.exe not found: %v", st.ErrorMessages)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	bin := t.TempDir()
	touch(t, filepath.Join(bin, FetcherName))

	c := newTestChecker(Locations{BinDir: bin}, nil)
	first := c.Check()
	second := c.Check()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Check() not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

type countingChecker struct {
	calls int
	st    Status
}

func (c *countingChecker) Check() Status {
	c.calls++
	return c.st
}

func TestCachedChecker(t *testing.T) {
	inner := &countingChecker{st: Status{FetcherAvailable: true}}
	cc := NewCachedChecker(inner, nil)

	if _, _, ok := cc.Peek(); ok {
		t.Fatal("Peek() on empty cache reported ok")
	}

	cc.Get()
	cc.Get()
	if inner.calls != 1 {
		t.Errorf("calls after two Get() = %d, want 1", inner.calls)
	}

	cc.Refresh()
	if inner.calls != 2 {
		t.Errorf("calls after Refresh() = %d, want 2", inner.calls)
	}

	cc.ttl = time.Nanosecond
	time.Sleep(time.Millisecond)
	cc.Get()
	if inner.calls != 3 {
		t.Errorf("calls after expiry = %d, want 3", inner.calls)
	}

	cc.Invalidate()
	if _, _, ok := cc.Peek(); ok {
		t.Error("Peek() after Invalidate() reported ok")
	}
}
