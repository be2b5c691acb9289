package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/db"
	"github.com/clipforge/clipforge-agent/internal/session"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database, NewRepository(database.Conn())
}

type fixedLocation string

func (f fixedLocation) GetDownloadLocation(context.Context) string { return string(f) }

func TestRepository_JobRoundTrip(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	job := &Job{
		ID:        NewID(),
		SourceURL: "https://example.com/v",
		OutputDir: "/tmp/out",
		Status:    StatusPending,
		Request: session.Request{
			SourceURL:       "https://example.com/v",
			OutputDirectory: "/tmp/out",
			Clips:           []clip.Spec{{ClipID: 1, Start: "00:10", End: "00:20"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	if err := repo.UpdateJobSession(ctx, job.ID, "1234567"); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateJobTitle(ctx, job.ID, "A title"); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateJobProgress(ctx, job.ID, 42, "Downloading: 34.0%"); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.SessionID != "1234567" || got.Title != "A title" || got.Progress != 42 || got.Phase != "Downloading: 34.0%" {
		t.Errorf("job = %+v", got)
	}
	if len(got.Request.Clips) != 1 || got.Request.Clips[0].End != "00:20" {
		t.Errorf("request = %+v", got.Request)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}

	missing, err := repo.GetJob(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("GetJob(missing) = %v, %v", missing, err)
	}
}

func TestRepository_PendingOrder(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"b", "a", "c"} {
		ts := base.Add(time.Duration(i) * time.Millisecond)
		job := &Job{ID: id, SourceURL: "https://example.com/" + id, OutputDir: "/tmp", Status: StatusPending, CreatedAt: ts, UpdatedAt: ts}
		if err := repo.CreateJob(ctx, job); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.UpdateJobStatus(ctx, "a", StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.ListPendingJobs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "b" || pending[1].ID != "c" {
		t.Errorf("pending = %v", pending)
	}

	all, err := repo.ListJobs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != "c" {
		t.Errorf("ListJobs newest first, got first = %s", all[0].ID)
	}
}

func TestRepository_ClipResultsAndConfig(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	now := time.Now()
	job := &Job{ID: "j1", SourceURL: "https://example.com/v", OutputDir: "/tmp", Status: StatusRunning, CreatedAt: now, UpdatedAt: now}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	for _, id := range []int{3, 1} {
		if err := repo.AddClipResult(ctx, &ClipResult{JobID: "j1", ClipID: id, OutputPath: "/tmp/x", DurationSeconds: 5, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	clips, err := repo.ListClipResults(ctx, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 2 || clips[0].ClipID != 1 || clips[1].ClipID != 3 {
		t.Errorf("clips = %+v", clips)
	}

	if v, err := repo.GetConfig(ctx, "missing"); err != nil || v != "" {
		t.Errorf("GetConfig(missing) = %q, %v", v, err)
	}
	if err := repo.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, _ := repo.GetConfig(ctx, "k"); v != "v2" {
		t.Errorf("GetConfig(k) = %q, want v2", v)
	}
}

func TestService_Submit(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()

	notified := 0
	defaultDir := t.TempDir()
	svc := NewService(repo, fixedLocation(defaultDir), nil)
	svc.OnSubmit(func() { notified++ })

	job, err := svc.Submit(ctx, session.Request{SourceURL: "https://example.com/v"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.Status != StatusPending || job.OutputDir != defaultDir {
		t.Errorf("job = %+v", job)
	}
	if len(job.Request.Clips) != 1 || job.Request.Clips[0].ClipID != 1 {
		t.Errorf("request not normalized: %+v", job.Request)
	}
	if notified != 1 {
		t.Errorf("notified = %d, want 1", notified)
	}

	got, err := svc.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Request.OutputDirectory != defaultDir {
		t.Errorf("stored request dir = %q", got.Request.OutputDirectory)
	}
}

func TestService_SubmitInvalid(t *testing.T) {
	_, repo := setupTestDB(t)
	svc := NewService(repo, fixedLocation(t.TempDir()), nil)

	_, err := svc.Submit(context.Background(), session.Request{SourceURL: "file:///etc/passwd"})
	if !errors.Is(err, session.ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}

	jobs, _ := svc.List(context.Background(), 10)
	if len(jobs) != 0 {
		t.Errorf("invalid request was persisted: %v", jobs)
	}
}

func TestService_GetAndClipFile(t *testing.T) {
	_, repo := setupTestDB(t)
	ctx := context.Background()
	svc := NewService(repo, fixedLocation(t.TempDir()), nil)

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) err = %v", err)
	}

	job, err := svc.Submit(ctx, session.Request{SourceURL: "https://example.com/v"})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.AddClipResult(ctx, &ClipResult{JobID: job.ID, ClipID: 1, OutputPath: "/out/1_clip 1.mp4", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}

	path, err := svc.ClipFile(ctx, job.ID, 1)
	if err != nil || path != "/out/1_clip 1.mp4" {
		t.Errorf("ClipFile = %q, %v", path, err)
	}
	if _, err := svc.ClipFile(ctx, job.ID, 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClipFile(2) err = %v", err)
	}
}
