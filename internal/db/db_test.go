package db

import (
	"path/filepath"
	"testing"
)

func openAt(t *testing.T, path string) *DB {
	t.Helper()
	d, err := New(path, nil)
	if err != nil {
		t.Fatalf("New(%s): %v", path, err)
	}
	return d
}

func insertJob(t *testing.T, d *DB, id, status string) {
	t.Helper()
	_, err := d.Conn().Exec(`
		INSERT INTO jobs (id, source_url, output_dir, status, progress, request, created_at, updated_at)
		VALUES (?, 'https://example.com/v', '/tmp/out', ?, 40, '{}', datetime('now'), datetime('now'))
	`, id, status)
	if err != nil {
		t.Fatalf("insert job %s: %v", id, err)
	}
}

func TestNew_SchemaAndPragmas(t *testing.T) {
	d := openAt(t, filepath.Join(t.TempDir(), "nested", "agent.db"))
	defer d.Close()

	for _, table := range []string{"jobs", "clip_results", "config", "_migrations"} {
		var name string
		err := d.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("missing table %s: %v", table, err)
		}
	}

	var mode string
	if err := d.Conn().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %s, want wal", mode)
	}

	var fk int
	if err := d.Conn().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestNew_ReopenKeepsMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	openAt(t, path).Close()

	d := openAt(t, path)
	defer d.Close()

	var applied int
	if err := d.Conn().QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&applied); err != nil {
		t.Fatal(err)
	}
	if applied != 1 {
		t.Errorf("applied migrations = %d, want 1", applied)
	}
}

func TestNew_FailsRunningJobsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")

	first := openAt(t, path)
	insertJob(t, first, "was-running", "running")
	insertJob(t, first, "queued", "pending")
	insertJob(t, first, "finished", "completed")
	first.Close()

	d := openAt(t, path)
	defer d.Close()

	want := map[string]string{
		"was-running": "failed",
		"queued":      "pending",
		"finished":    "completed",
	}
	for id, status := range want {
		var got string
		var errMsg *string
		if err := d.Conn().QueryRow("SELECT status, error FROM jobs WHERE id = ?", id).Scan(&got, &errMsg); err != nil {
			t.Fatalf("query %s: %v", id, err)
		}
		if got != status {
			t.Errorf("%s status = %s, want %s", id, got, status)
		}
		if id == "was-running" && (errMsg == nil || *errMsg != InterruptedReason) {
			t.Errorf("%s error = %v, want %q", id, errMsg, InterruptedReason)
		}
	}
}

func TestClipResultsCascade(t *testing.T) {
	d := openAt(t, filepath.Join(t.TempDir(), "agent.db"))
	defer d.Close()

	insertJob(t, d, "j1", "completed")
	if _, err := d.Conn().Exec(`
		INSERT INTO clip_results (job_id, clip_id, output_path, duration_seconds, created_at)
		VALUES ('j1', 1, '/tmp/out/1_clip 1.mp4', 12.5, datetime('now'))
	`); err != nil {
		t.Fatalf("insert clip result: %v", err)
	}

	if _, err := d.Conn().Exec(`DELETE FROM jobs WHERE id = 'j1'`); err != nil {
		t.Fatalf("delete job: %v", err)
	}

	var count int
	if err := d.Conn().QueryRow(`SELECT COUNT(*) FROM clip_results`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("clip_results count = %d after deleting job, want 0", count)
	}
}
