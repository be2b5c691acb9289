package progress

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/clipforge-agent/internal/logging"
)

// Tag prefixes every line on the progress stream.
type Tag string

const (
	TagOutput Tag = "[OUTPUT]"
	TagError  Tag = "[ERROR]"
)

// ClipStartPhrase opens each clip's section of the stream. The hub lowers
// its regression floor to the start of the trim band when it sees it.
const ClipStartPhrase = "Processing clip"

// Completion is sent once per job after at least one clip succeeded.
type Completion struct {
	FilePath   string  `json:"filePath"`
	Duration   float64 `json:"duration"`
	TotalClips int     `json:"totalClips"`
}

// Reporter receives the pipeline's user-visible messages.
type Reporter interface {
	Output(text string)
	Error(text string)
	Complete(c Completion)
}

type EventType string

const (
	EventLine     EventType = "line"
	EventComplete EventType = "complete"
)

// Event is what subscribers receive.
type Event struct {
	Type            EventType   `json:"type"`
	JobID           string      `json:"job_id,omitempty"`
	Tag             Tag         `json:"tag,omitempty"`
	Line            string      `json:"line,omitempty"`
	Update          Update      `json:"update"`
	TrimmedDuration *float64    `json:"trimmed_duration,omitempty"`
	Completion      *Completion `json:"completion,omitempty"`
	Time            time.Time   `json:"time"`
}

// Snapshot is the latest known state of the active job.
type Snapshot struct {
	JobID     string    `json:"job_id,omitempty"`
	Percent   float64   `json:"percent"`
	Phase     string    `json:"phase,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const subscriberBuffer = 256

// Hub translates tagged lines, appends them to the durable log and fans
// them out to subscribers. Slow subscribers lose events rather than block
// the pipeline.
type Hub struct {
	translator Translator
	sink       logging.Sink
	logger     *slog.Logger

	mu       sync.Mutex
	subs     map[int]chan Event
	nextSub  int
	snapshot Snapshot
	floor    float64
}

func NewHub(translator Translator, sink logging.Sink, logger *slog.Logger) *Hub {
	if translator == nil {
		translator = LineTranslator{}
	}
	if sink == nil {
		sink = logging.Discard
	}
	return &Hub{
		translator: translator,
		sink:       sink,
		logger:     logger,
		subs:       make(map[int]chan Event),
	}
}

// Subscribe returns a channel of events and a function that releases it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// Snapshot returns the latest state of the most recent job.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

// ForJob starts a new job section and returns its reporter.
func (h *Hub) ForJob(jobID string) *JobReporter {
	h.mu.Lock()
	h.snapshot = Snapshot{JobID: jobID, Phase: "Queued", UpdatedAt: time.Now()}
	h.floor = 0
	h.mu.Unlock()
	return &JobReporter{hub: h, jobID: jobID}
}

func (h *Hub) publishLine(jobID string, tag Tag, text string) Event {
	line := string(tag) + " " + text
	h.sink.Append("", line)

	ev := Event{
		Type:   EventLine,
		JobID:  jobID,
		Tag:    tag,
		Line:   line,
		Update: h.translator.Translate(line),
		Time:   time.Now(),
	}
	if d, ok := ParseTrimmedDuration(text); ok {
		ev.TrimmedDuration = &d
	}

	h.mu.Lock()
	h.applyLocked(ev, text)
	h.broadcastLocked(ev)
	h.mu.Unlock()
	return ev
}

func (h *Hub) publishComplete(jobID string, c Completion) {
	h.sink.Append("", "[COMPLETE] "+c.FilePath)

	full := 100.0
	ev := Event{
		Type:       EventComplete,
		JobID:      jobID,
		Update:     Update{Percent: &full, Phase: "Download complete!"},
		Completion: &c,
		Time:       time.Now(),
	}

	h.mu.Lock()
	h.snapshot.Percent = full
	h.snapshot.Phase = ev.Update.Phase
	h.snapshot.Detail = ""
	h.snapshot.UpdatedAt = ev.Time
	h.broadcastLocked(ev)
	h.mu.Unlock()
}

// applyLocked folds an event into the snapshot. Percent regressions are
// ignored except at the start of a new clip, where the floor drops back to
// the beginning of the trim band.
func (h *Hub) applyLocked(ev Event, text string) {
	if ev.JobID != "" && ev.JobID != h.snapshot.JobID {
		h.snapshot = Snapshot{JobID: ev.JobID}
		h.floor = 0
	}
	if strings.Contains(text, ClipStartPhrase) && h.floor > 75 {
		h.floor = 75
	}
	h.snapshot.UpdatedAt = ev.Time
	if ev.Tag == TagError {
		h.snapshot.LastError = text
	}
	if ev.Update.Phase != "" {
		h.snapshot.Phase = ev.Update.Phase
		h.snapshot.Detail = ev.Update.Detail
	}
	if p := ev.Update.Percent; p != nil && *p >= h.floor {
		h.snapshot.Percent = *p
		h.floor = *p
	}
}

func (h *Hub) broadcastLocked(ev Event) {
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			if h.logger != nil {
				h.logger.Debug("dropping progress event for slow subscriber", "subscriber", id)
			}
		}
	}
}

// JobReporter is a Reporter bound to one job.
type JobReporter struct {
	hub   *Hub
	jobID string
}

func (r *JobReporter) JobID() string { return r.jobID }

func (r *JobReporter) Output(text string) { r.hub.publishLine(r.jobID, TagOutput, text) }

func (r *JobReporter) Error(text string) { r.hub.publishLine(r.jobID, TagError, text) }

func (r *JobReporter) Complete(c Completion) { r.hub.publishComplete(r.jobID, c) }
