package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clipforge/clipforge-agent/internal/clip"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

var (
	errorColor  = lipgloss.Color("#FF5F5F")
	dimColor    = lipgloss.Color("#7C7C7C")
	accentColor = lipgloss.Color("#5FAFFF")
	okColor     = lipgloss.Color("#5FD787")

	errorStyle = lipgloss.NewStyle().Foreground(errorColor)
	dimStyle   = lipgloss.NewStyle().Foreground(dimColor)
	phaseStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(okColor).Bold(true)
)

// renderer prints the progress stream of a foreground job. Phase changes
// get their own highlighted line; raw tool output is dimmed.
type renderer struct {
	w         io.Writer
	lastPhase string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) render(ev progress.Event) {
	if s := r.format(ev); s != "" {
		fmt.Fprintln(r.w, s)
	}
}

func (r *renderer) format(ev progress.Event) string {
	switch ev.Type {
	case progress.EventComplete:
		n := 0
		if ev.Completion != nil {
			n = ev.Completion.TotalClips
		}
		return okStyle.Render(fmt.Sprintf("✔ Done: %d clip(s) written", n))
	case progress.EventLine:
	default:
		return ""
	}

	text := strings.TrimPrefix(ev.Line, string(ev.Tag)+" ")
	if ev.Tag == progress.TagError {
		return errorStyle.Render("✖ " + text)
	}

	var b strings.Builder
	if ev.Update.Phase != "" && ev.Update.Phase != r.lastPhase {
		r.lastPhase = ev.Update.Phase
		pct := ""
		if ev.Update.Percent != nil {
			pct = fmt.Sprintf("[%3.0f%%] ", *ev.Update.Percent)
		}
		b.WriteString(phaseStyle.Render(pct + ev.Update.Phase))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("  " + text))
	return b.String()
}

func (r *renderer) summaryLine(res clip.Result, size string) string {
	return fmt.Sprintf("%s %s  %s  %s",
		okStyle.Render(fmt.Sprintf("clip %d", res.ClipID)),
		clip.FormatOffset(int(res.DurationSeconds)),
		dimStyle.Render(size),
		res.OutputPath,
	)
}
