// Package jobs queues clip jobs in sqlite and runs them one at a time.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge-agent/internal/session"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Job struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id,omitempty"`
	SourceURL string          `json:"source_url"`
	OutputDir string          `json:"output_dir"`
	Status    string          `json:"status"`
	Progress  int             `json:"progress"`
	Phase     string          `json:"phase,omitempty"`
	Title     string          `json:"title,omitempty"`
	Request   session.Request `json:"request"`
	Error     string          `json:"error,omitempty"`
	Clips     []ClipResult    `json:"clips,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

type ClipResult struct {
	JobID           string    `json:"job_id"`
	ClipID          int       `json:"clip_id"`
	OutputPath      string    `json:"output_path"`
	DurationSeconds float64   `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewID returns a time-ordered job id.
func NewID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
