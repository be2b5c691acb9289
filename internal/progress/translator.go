// Package progress turns raw pipeline output into the normalized
// (percent, phase) signal shown to users, and fans tagged progress lines out
// to subscribers and the durable log.
package progress

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultTotalSeconds is assumed when the source duration is unknown.
const DefaultTotalSeconds = 600

// Phase labels that are not taken from the milestone table.
const (
	PhaseError = "Error occurred!"
)

// Update is the translation of one line. Percent is nil when the line
// carries no positional information.
type Update struct {
	Percent *float64 `json:"percent"`
	Phase   string   `json:"phase"`
	Detail  string   `json:"detail,omitempty"`
}

// Translator classifies one line. The heuristic implementation below can be
// swapped for a structured one without touching the pipeline.
type Translator interface {
	Translate(line string) Update
}

// LineTranslator is the default Translator. TotalSeconds scales ffmpeg
// time= lines; zero falls back to DefaultTotalSeconds.
type LineTranslator struct {
	TotalSeconds float64
}

func (t LineTranslator) Translate(line string) Update {
	return Translate(line, t.TotalSeconds)
}

var (
	downloadRe    = regexp.MustCompile(`(?:⇊\s*)?\[download\]\s+(\d+(?:\.\d+)?)%\s+of\s+~?\s*[\d.]+\w+\s+at\s+[\d.]+\w+/s\s+ETA\s+[\d:]+`)
	clipPercentRe = regexp.MustCompile(`Trimming clip \d+:\s+(\d+(?:\.\d+)?)%\s+complete`)
	ffmpegTimeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	trimmedRe     = regexp.MustCompile(`\[TRIMMED_DURATION\](\d+(?:\.\d+)?)`)
)

type milestone struct {
	phrase  string
	percent float64
	label   string
}

// milestones is matched in order; the first phrase contained in the line wins.
var milestones = []milestone{
	{"Script running", 2, "Initializing..."},
	{"Checking dependencies", 5, "Checking dependencies..."},
	{"Download location", 8, "Setting up download location..."},
	{"Fetching metadata", 12, "Fetching video info..."},
	{"Got title", 18, "Retrieved title..."},
	{"Cleaning X title", 20, "Processing title..."},
	{"Using title for file", 22, "Preparing filename..."},
	{"Downloading video", 25, "Starting download..."},
	{"Download completed successfully", 75, "Download finished, preparing..."},
	{"Trimming video from", 80, "Starting trimming..."},
	{"Trimming completed successfully", 90, "Trimming complete..."},
	{"Applying basic metadata", 95, "Applying metadata..."},
	{"Metadata applied successfully", 98, "Metadata applied..."},
	{"Final video duration", 100, "Finalizing..."},
	{"Download finished", 100, "Download complete!"},
}

// Translate classifies line in priority order: download percentage, trim
// progress, milestone phrase, error marker. Lines matching nothing yield a
// nil percent and an empty phase.
func Translate(line string, totalSeconds float64) Update {
	if m := downloadRe.FindStringSubmatch(line); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		overall := 25 + pct*0.5
		return Update{
			Percent: &overall,
			Phase:   fmt.Sprintf("Downloading: %.1f%%", pct),
			Detail:  fmt.Sprintf("(%d%% overall)", int(math.Round(overall))),
		}
	}

	if pct, ok := trimPercent(line, totalSeconds); ok {
		overall := 75 + pct*0.25
		return Update{
			Percent: &overall,
			Phase:   fmt.Sprintf("Trimming: %d%%", int(math.Round(pct))),
			Detail:  fmt.Sprintf("(%d%% overall)", int(math.Round(overall))),
		}
	}

	for _, ms := range milestones {
		if strings.Contains(line, ms.phrase) {
			p := ms.percent
			return Update{Percent: &p, Phase: ms.label}
		}
	}

	if strings.Contains(line, string(TagError)) {
		return Update{Phase: PhaseError}
	}

	return Update{}
}

// trimPercent recognizes both the processor's own "Trimming clip N: P%
// complete" lines and raw ffmpeg time= lines.
func trimPercent(line string, totalSeconds float64) (float64, bool) {
	if m := clipPercentRe.FindStringSubmatch(line); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		return math.Min(100, pct), true
	}
	if !strings.Contains(line, "frame=") {
		return 0, false
	}
	elapsed, ok := ParseFFmpegTime(line)
	if !ok {
		return 0, false
	}
	if totalSeconds <= 0 {
		totalSeconds = DefaultTotalSeconds
	}
	return math.Min(100, elapsed/totalSeconds*100), true
}

// ParseFFmpegTime extracts the elapsed seconds from an ffmpeg progress line
// containing time=HH:MM:SS.ms.
func ParseFFmpegTime(line string) (float64, bool) {
	m := ffmpegTimeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	s, _ := strconv.ParseFloat(m[3], 64)
	return float64(h*3600+mm*60) + s, true
}

// ParseTrimmedDuration extracts the [TRIMMED_DURATION]<seconds> marker.
func ParseTrimmedDuration(line string) (float64, bool) {
	m := trimmedRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TrimmedDurationMarker renders the marker for seconds.
func TrimmedDurationMarker(seconds float64) string {
	return fmt.Sprintf("[TRIMMED_DURATION]%.2f", seconds)
}
