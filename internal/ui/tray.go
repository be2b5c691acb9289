package ui

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/getlantern/systray"

	"github.com/clipforge/clipforge-agent/internal/fsutil"
	"github.com/clipforge/clipforge-agent/internal/progress"
)

//go:embed icon.png
var iconBytes []byte

// Queue is implemented by *jobs.Runner.
type Queue interface {
	Pause()
	Resume()
	IsPaused() bool
}

// EventSource is implemented by *progress.Hub.
type EventSource interface {
	Subscribe() (<-chan progress.Event, func())
	Snapshot() progress.Snapshot
}

// Locator is implemented by *settings.Store.
type Locator interface {
	GetDownloadLocation(ctx context.Context) string
}

type Tray struct {
	runner   Queue
	hub      EventSource
	settings Locator
	logger   *slog.Logger

	statusItem *systray.MenuItem
	updateItem *systray.MenuItem
	pauseItem  *systray.MenuItem

	mu sync.Mutex

	openFolder func(dir string) error
	onQuit     func()
}

type TrayConfig struct {
	Runner   Queue
	Hub      EventSource
	Settings Locator
	Logger   *slog.Logger
	OnQuit   func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		runner:     cfg.Runner,
		hub:        cfg.Hub,
		settings:   cfg.Settings,
		logger:     cfg.Logger,
		openFolder: fsutil.OpenInFileManager,
		onQuit:     cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Clipforge")
	systray.SetTooltip("Clipforge Agent")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current job status")
	t.statusItem.Disable()

	t.updateItem = systray.AddMenuItem("No jobs yet", "Last progress update")
	t.updateItem.Disable()

	systray.AddSeparator()

	t.pauseItem = systray.AddMenuItem("Pause", "Pause the job queue")
	openItem := systray.AddMenuItem("Open Downloads Folder", "Show the download location")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Clipforge Agent")

	events, release := t.hub.Subscribe()
	ticker := time.NewTicker(30 * time.Second)

	go func() {
		defer release()
		defer ticker.Stop()
		for {
			select {
			case <-t.pauseItem.ClickedCh:
				t.togglePause()
			case <-openItem.ClickedCh:
				t.handleOpenFolder()
			case _, ok := <-events:
				if !ok {
					return
				}
				t.refresh()
			case <-ticker.C:
				t.refresh()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) togglePause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runner.IsPaused() {
		t.runner.Resume()
		t.pauseItem.SetTitle("Pause")
	} else {
		t.runner.Pause()
		t.pauseItem.SetTitle("Resume")
	}
	t.statusItem.SetTitle(statusTitle(t.hub.Snapshot(), t.runner.IsPaused()))
}

func (t *Tray) handleOpenFolder() {
	dir := t.settings.GetDownloadLocation(context.Background())
	if err := t.openFolder(dir); err != nil {
		t.logger.Error("failed to open download folder", "dir", dir, "error", err)
	}
}

// refresh redraws the status lines from the hub snapshot.
func (t *Tray) refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.hub.Snapshot()
	t.statusItem.SetTitle(statusTitle(snap, t.runner.IsPaused()))
	t.updateItem.SetTitle(updateTitle(snap, time.Now()))
}

func (t *Tray) Quit() {
	systray.Quit()
}

func statusTitle(snap progress.Snapshot, paused bool) string {
	if paused {
		return "Status: Paused"
	}
	if snap.JobID == "" || snap.Phase == "" {
		return "Status: Idle"
	}
	pct := int(math.Round(snap.Percent))
	if pct >= 100 {
		return "Status: " + snap.Phase
	}
	return fmt.Sprintf("Status: %s (%d%%)", snap.Phase, pct)
}

func updateTitle(snap progress.Snapshot, now time.Time) string {
	if snap.UpdatedAt.IsZero() {
		return "No jobs yet"
	}
	if snap.LastError != "" {
		return "Last error " + humanize.RelTime(snap.UpdatedAt, now, "ago", "from now")
	}
	return "Updated " + humanize.RelTime(snap.UpdatedAt, now, "ago", "from now")
}
