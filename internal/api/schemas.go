package api

import (
	"time"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/fetch"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State        string             `json:"state"`
	LastError    string             `json:"last_error,omitempty"`
	JobsPending  int                `json:"jobs_pending"`
	ActiveJob    *JobResponse       `json:"active_job,omitempty"`
	Progress     *progress.Snapshot `json:"progress,omitempty"`
	Dependencies *DependencySummary `json:"dependencies,omitempty"`
}

type DependencySummary struct {
	Ready   bool     `json:"ready"`
	Missing []string `json:"missing,omitempty"`
}

type DependenciesResponse struct {
	deps.Status
	Ready bool `json:"ready"`
}

type DownloadLocationResponse struct {
	Path string `json:"path"`
}

type DownloadLocationRequest struct {
	Path string `json:"path"`
}

type SaveLocationResponse struct {
	Path      string `json:"path"`
	Persisted bool   `json:"persisted"`
}

type MetadataRequest struct {
	URL string `json:"url"`
}

type MetadataResponse struct {
	Title           string  `json:"title"`
	DisplayTitle    string  `json:"display_title"`
	DurationSeconds float64 `json:"duration_seconds"`
	Duration        string  `json:"duration"`
	TitleFound      bool    `json:"title_found"`
	DurationFound   bool    `json:"duration_found"`
}

type SubmitJobResponse struct {
	JobID string `json:"job_id"`
}

type ClipSpecResponse struct {
	ClipID int    `json:"clip_id"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type ClipResultResponse struct {
	ClipID          int     `json:"clip_id"`
	FilePath        string  `json:"file_path"`
	DurationSeconds float64 `json:"duration_seconds"`
	Duration        string  `json:"duration"`
}

type JobResponse struct {
	ID        string               `json:"id"`
	SessionID string               `json:"session_id,omitempty"`
	SourceURL string               `json:"source_url"`
	OutputDir string               `json:"output_dir"`
	Title     string               `json:"title,omitempty"`
	Status    string               `json:"status"`
	Progress  int                  `json:"progress"`
	Phase     string               `json:"phase,omitempty"`
	Error     string               `json:"error,omitempty"`
	Requested []ClipSpecResponse   `json:"requested_clips,omitempty"`
	Clips     []ClipResultResponse `json:"clips,omitempty"`
	CreatedAt string               `json:"created_at"`
	UpdatedAt string               `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type RunnerResponse struct {
	Paused bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func JobToResponse(j *jobs.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		SessionID: j.SessionID,
		SourceURL: j.SourceURL,
		OutputDir: j.OutputDir,
		Title:     j.Title,
		Status:    j.Status,
		Progress:  j.Progress,
		Phase:     j.Phase,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
	for _, c := range j.Request.Clips {
		resp.Requested = append(resp.Requested, ClipSpecResponse{ClipID: c.ClipID, Start: c.Start, End: c.End})
	}
	for _, c := range j.Clips {
		resp.Clips = append(resp.Clips, ClipResultResponse{
			ClipID:          c.ClipID,
			FilePath:        c.OutputPath,
			DurationSeconds: c.DurationSeconds,
			Duration:        clip.FormatOffset(int(c.DurationSeconds)),
		})
	}
	return resp
}

func MetadataToResponse(md fetch.Metadata) MetadataResponse {
	return MetadataResponse{
		Title:           md.Title,
		DisplayTitle:    md.DisplayTitle,
		DurationSeconds: md.DurationSeconds,
		Duration:        clip.FormatOffset(int(md.DurationSeconds)),
		TitleFound:      md.TitleFound,
		DurationFound:   md.DurationFound,
	}
}
