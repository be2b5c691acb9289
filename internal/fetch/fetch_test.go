package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/clipforge/clipforge-agent/internal/process"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

// fakeRunner replays scripted output keyed by command label.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []process.Command
	scripts map[string]func(process.Command) process.Outcome
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command) process.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	script := f.scripts[cmd.Label]
	f.mu.Unlock()

	if script == nil {
		return process.Outcome{Status: process.StatusSpawnFailure, Err: errors.New("no script")}
	}
	return script(cmd)
}

func (f *fakeRunner) call(label string) (process.Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.Label == label {
			return c, true
		}
	}
	return process.Command{}, false
}

func emit(lines ...string) func(process.Command) process.Outcome {
	return func(cmd process.Command) process.Outcome {
		for _, l := range lines {
			cmd.OnLine(process.Line{Stream: process.Stdout, Text: l})
		}
		return process.Outcome{Status: process.StatusSuccess}
	}
}

func failWith(code int) func(process.Command) process.Outcome {
	return func(process.Command) process.Outcome {
		return process.Outcome{Status: process.StatusNonZeroExit, ExitCode: code, StderrTail: "ERROR: unsupported URL"}
	}
}

type recordingReporter struct {
	mu     sync.Mutex
	output []string
	errors []string
}

func (r *recordingReporter) Output(text string) {
	r.mu.Lock()
	r.output = append(r.output, text)
	r.mu.Unlock()
}

func (r *recordingReporter) Error(text string) {
	r.mu.Lock()
	r.errors = append(r.errors, text)
	r.mu.Unlock()
}

func (r *recordingReporter) Complete(progress.Completion) {}

func TestFetchTitle_SkipsDiagnostics(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:title": emit(
			"WARNING: [youtube] falling back to web client",
			"nsig extraction failed: you may experience throttling",
			"Tom &amp; Jerry &#39;Classic&#39;",
		),
	}}
	f := NewFetcher(fr, nil, time.Minute)

	title, err := f.FetchTitle(context.Background(), "yt-dlp", "https://www.youtube.com/watch?v=abc")
	if err != nil {
		t.Fatalf("FetchTitle: %v", err)
	}
	if title != "Tom & Jerry 'Classic'" {
		t.Errorf("title = %q", title)
	}

	cmd, _ := fr.call("yt-dlp:title")
	if cmd.HardTimeout != time.Minute {
		t.Errorf("HardTimeout = %v, want 1m", cmd.HardTimeout)
	}
	if strings.Join(cmd.Args, " ") != "--get-title https://www.youtube.com/watch?v=abc" {
		t.Errorf("args = %v", cmd.Args)
	}
}

func TestFetchTitle_OnlyDiagnostics(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:title": emit("ERROR: something", "   "),
	}}
	_, err := NewFetcher(fr, nil, 0).FetchTitle(context.Background(), "yt-dlp", "https://example.com/v")
	if !errors.Is(err, ErrNoTitle) {
		t.Errorf("err = %v, want ErrNoTitle", err)
	}
}

func TestFetchTitle_XAuthorPrefixStripped(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:title": emit("Some Author - The actual post text"),
	}}
	title, err := NewFetcher(fr, nil, 0).FetchTitle(context.Background(), "yt-dlp", "https://x.com/someone/status/1")
	if err != nil {
		t.Fatal(err)
	}
	if title != "The actual post text" {
		t.Errorf("title = %q", title)
	}
}

func TestFetchDuration(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:duration": emit("[youtube] abc: Downloading webpage", "213.5"),
	}}
	d, err := NewFetcher(fr, nil, 0).FetchDuration(context.Background(), "yt-dlp", "https://example.com/v")
	if err != nil {
		t.Fatal(err)
	}
	if d != 213.5 {
		t.Errorf("duration = %v", d)
	}

	cmd, _ := fr.call("yt-dlp:duration")
	joined := strings.Join(cmd.Args, " ")
	for _, want := range []string{"--skip-download", "--print duration", "--extractor-retries 3"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %v", want, cmd.Args)
		}
	}
}

func TestFetchTitleAndDuration_Fallbacks(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:title":    failWith(1),
		"yt-dlp:duration": emit("NA"),
	}}
	f := NewFetcher(fr, nil, 0)
	f.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	md := f.FetchTitleAndDuration(context.Background(), "yt-dlp", "https://example.com/v")
	if md.TitleFound || md.DurationFound {
		t.Errorf("found flags = %v/%v, want false/false", md.TitleFound, md.DurationFound)
	}
	if md.Title != "video_20260304050607" || md.FileTitle != md.Title {
		t.Errorf("title = %q file = %q", md.Title, md.FileTitle)
	}
	if md.DurationSeconds != DefaultDurationSeconds {
		t.Errorf("duration = %v", md.DurationSeconds)
	}
}

func TestFetchTitleAndDuration_Success(t *testing.T) {
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:title":    emit(`One two three four five six seven eight nine: "ten"`),
		"yt-dlp:duration": emit("90"),
	}}
	md := NewFetcher(fr, nil, 0).FetchTitleAndDuration(context.Background(), "yt-dlp", "https://example.com/v")

	if !md.TitleFound || !md.DurationFound {
		t.Fatalf("found flags = %v/%v", md.TitleFound, md.DurationFound)
	}
	if md.DisplayTitle != "One two three four five six seven eight" {
		t.Errorf("DisplayTitle = %q", md.DisplayTitle)
	}
	if md.FileTitle != "One two three four five six seven eight nine ten" {
		t.Errorf("FileTitle = %q", md.FileTitle)
	}
	if md.DurationSeconds != 90 {
		t.Errorf("DurationSeconds = %v", md.DurationSeconds)
	}
}

func TestDownload_Success(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "video_123_temp.mp4")
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:download": func(cmd process.Command) process.Outcome {
			cmd.OnLine(process.Line{Stream: process.Stdout, Text: "[download]  42.0% of 10.00MiB"})
			cmd.OnLine(process.Line{Stream: process.Stderr, Text: "WARNING: slow"})
			cmd.OnLine(process.Line{Stream: process.Stderr, Text: "ERROR: fragment 3 failed"})
			if err := os.WriteFile(dest, []byte("mp4"), 0644); err != nil {
				t.Fatal(err)
			}
			return process.Outcome{Status: process.StatusSuccess}
		},
	}}
	rep := &recordingReporter{}

	err := NewDownloader(fr, nil).Download(context.Background(), "yt-dlp", "https://example.com/v", dest, rep)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(rep.output) != 2 || len(rep.errors) != 1 {
		t.Errorf("output = %v errors = %v", rep.output, rep.errors)
	}

	cmd, _ := fr.call("yt-dlp:download")
	if cmd.HangTimeout != 0 || cmd.HardTimeout != 0 {
		t.Error("download must run without timeouts")
	}
	args := cmd.Args
	if args[len(args)-1] != "https://example.com/v" || args[len(args)-2] != dest || args[len(args)-3] != "-o" {
		t.Errorf("args tail = %v", args[len(args)-3:])
	}
}

func TestDownload_ExitZeroWithoutFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "missing.mp4")
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:download": emit(),
	}}
	err := NewDownloader(fr, nil).Download(context.Background(), "yt-dlp", "https://example.com/v", dest, nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Errorf("err = %v, want ErrDownloadFailed", err)
	}
}

func TestDownload_NonZeroExit(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "v.mp4")
	fr := &fakeRunner{scripts: map[string]func(process.Command) process.Outcome{
		"yt-dlp:download": failWith(1),
	}}
	err := NewDownloader(fr, nil).Download(context.Background(), "yt-dlp", "https://example.com/v", dest, nil)
	if !errors.Is(err, ErrDownloadFailed) || !strings.Contains(err.Error(), "exited 1") {
		t.Errorf("err = %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a<b>c:d"e/f\g|h?i*j`, "abcdefghij"},
		{"  spaced  ", "spaced"},
		{"tab\there", "tabhere"},
		{"ends with dot.", "ends with dot"},
		{`<>:"/\|?*`, ""},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("x", 300)
	if got := SanitizeFilename(long); len(got) != maxFileTitleBytes {
		t.Errorf("long name length = %d", len(got))
	}
}

func TestSanitizeFilename_MultibyteFitsNameLimit(t *testing.T) {
	for _, raw := range []string{
		strings.Repeat("日本語のタイトル", 20),
		strings.Repeat("🎬", 100),
		strings.Repeat("é", 200),
	} {
		title := SanitizeFilename(raw)
		if !utf8.ValidString(title) {
			t.Errorf("truncated title is not valid UTF-8: %q", title)
		}
		if len(title) > maxFileTitleBytes {
			t.Errorf("title is %d bytes, want <= %d", len(title), maxFileTitleBytes)
		}

		dir := t.TempDir()
		names := []string{
			title + "_1234567_temp.mp4",
			fmt.Sprintf("trimmed_%s_clip%d_%d.mp4", title, 99, time.Now().UnixNano()),
		}
		for _, name := range names {
			if len(name) > 255 {
				t.Errorf("composed name is %d bytes: %q", len(name), name)
				continue
			}
			if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
				t.Errorf("write %q: %v", name, err)
			}
		}
	}
}

func TestIsXURL(t *testing.T) {
	tests := map[string]bool{
		"https://x.com/a/status/1":          true,
		"https://twitter.com/a/status/1":    true,
		"https://mobile.twitter.com/a":      true,
		"https://www.youtube.com/watch?v=1": false,
		"https://notx.com/a":                false,
		"::not a url":                       false,
	}
	for in, want := range tests {
		if got := IsXURL(in); got != want {
			t.Errorf("IsXURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCleanTitle_NoDashOnX(t *testing.T) {
	// Without an author separator the whole title is kept.
	if got := CleanTitle("just text", "https://x.com/a/status/1"); got != "just text" {
		t.Errorf("CleanTitle = %q", got)
	}
}
