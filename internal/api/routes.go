package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/jobs"
	"github.com/clipforge/clipforge-agent/internal/playback"
	"github.com/clipforge/clipforge-agent/internal/session"
)

const sseHeartbeat = 15 * time.Second

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LoopbackOnly(cfg.Logger))
	r.Use(CORSAllowlist())

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/dependencies", dependenciesHandler(cfg))
		r.Get("/settings/download-location", getLocationHandler(cfg))
		r.Put("/settings/download-location", putLocationHandler(cfg))
		r.Post("/metadata", metadataHandler(cfg))
		r.Post("/jobs", submitJobHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/clips/{clipId}/file", clipFileHandler(cfg))
		r.Head("/jobs/{id}/clips/{clipId}/file", clipFileHandler(cfg))
		r.Get("/events", eventsHandler(cfg))
		r.Post("/runner/pause", pauseHandler(cfg))
		r.Post("/runner/resume", resumeHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		recent, _ := cfg.Jobs.List(ctx, 50)

		state := "idle"
		var activeJob *JobResponse
		pending := 0
		lastError := ""

		activeID := ""
		if cfg.Runner != nil {
			activeID = cfg.Runner.ActiveJobID()
		}

		for _, j := range recent {
			switch {
			case j.Status == jobs.StatusPending:
				pending++
			case j.Status == jobs.StatusRunning && (activeID == "" || j.ID == activeID):
				resp := JobToResponse(j)
				activeJob = &resp
			case j.Status == jobs.StatusFailed && lastError == "":
				lastError = j.Error
			}
		}

		switch {
		case activeJob != nil:
			state = "processing"
		case cfg.Runner != nil && cfg.Runner.IsPaused():
			state = "paused"
		case lastError != "" && len(recent) > 0 && recent[0].Status == jobs.StatusFailed:
			state = "error"
		}

		resp := StatusResponse{
			State:       state,
			LastError:   lastError,
			JobsPending: pending,
			ActiveJob:   activeJob,
		}

		if cfg.Hub != nil {
			snap := cfg.Hub.Snapshot()
			if snap.JobID != "" {
				resp.Progress = &snap
			}
		}

		if cfg.Deps != nil {
			st := cfg.Deps.Get()
			resp.Dependencies = &DependencySummary{Ready: st.Ready(), Missing: st.Missing()}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func dependenciesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := cfg.Deps.Get()
		if r.URL.Query().Get("refresh") == "1" {
			st = cfg.Deps.Refresh()
		}
		WriteJSON(w, http.StatusOK, DependenciesResponse{Status: st, Ready: st.Ready()})
	}
}

func getLocationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, DownloadLocationResponse{Path: cfg.Settings.GetDownloadLocation(r.Context())})
	}
}

func putLocationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DownloadLocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Path == "" || !filepath.IsAbs(req.Path) {
			WriteError(w, http.StatusBadRequest, "an absolute path is required", "BAD_REQUEST")
			return
		}
		path := filepath.Clean(req.Path)
		if !fsutil.DirExists(path) {
			WriteError(w, http.StatusBadRequest, "directory does not exist", "BAD_REQUEST")
			return
		}

		persisted := cfg.Settings.SaveDownloadLocation(r.Context(), path)
		WriteJSON(w, http.StatusOK, SaveLocationResponse{Path: path, Persisted: persisted})
	}
}

func metadataHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body MetadataRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		req := session.Request{SourceURL: body.URL}
		if err := req.Normalize(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		st := cfg.Deps.Get()
		if !st.FetcherAvailable {
			WriteError(w, http.StatusServiceUnavailable, "yt-dlp is not available", "DEPENDENCIES_MISSING")
			return
		}

		md := cfg.Metadata.FetchTitleAndDuration(r.Context(), st.FetcherPath, req.SourceURL)
		WriteJSON(w, http.StatusOK, MetadataToResponse(md))
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req session.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req)
		if errors.Is(err, session.ErrInvalidRequest) {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}
		if err != nil {
			cfg.Logger.Error("failed to queue job", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to queue job", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := cfg.Jobs.Get(r.Context(), id)
		if errors.Is(err, jobs.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

func clipFileHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		clipID, err := strconv.Atoi(chi.URLParam(r, "clipId"))
		if err != nil {
			WriteError(w, http.StatusBadRequest, "clip id must be an integer", "BAD_REQUEST")
			return
		}

		path, err := cfg.Jobs.ClipFile(r.Context(), id, clipID)
		if errors.Is(err, jobs.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		opts := playback.Options{Download: r.URL.Query().Get("download") == "1"}
		err = cfg.Playback.ServeClip(w, r, path, opts)
		if errors.Is(err, playback.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "clip file is no longer on disk", "FILE_MISSING")
			return
		}
		if err != nil {
			cfg.Logger.Error("clip playback error", "error", err, "job_id", id, "clip_id", clipID)
			WriteError(w, http.StatusInternalServerError, "failed to read clip", "INTERNAL_ERROR")
		}
	}
}

// eventsHandler streams progress events as Server-Sent Events. The first
// event is the current snapshot so late subscribers can render at once.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported", "INTERNAL_ERROR")
			return
		}

		events, release := cfg.Hub.Subscribe()
		defer release()

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		if err := writeEvent(w, "snapshot", cfg.Hub.Snapshot()); err != nil {
			return
		}
		flusher.Flush()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case ev, open := <-events:
				if !open {
					return
				}
				if err := writeEvent(w, string(ev.Type), ev); err != nil {
					return
				}
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
	return err
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Runner.Pause()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: cfg.Runner.IsPaused()})
	}
}

func resumeHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Runner.Resume()
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: cfg.Runner.IsPaused()})
	}
}
