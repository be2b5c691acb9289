package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/config"
	"github.com/clipforge/clipforge-agent/internal/deps"
	"github.com/clipforge/clipforge-agent/internal/logging"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that yt-dlp, ffmpeg and ffprobe can be found",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		st := newPipeline(cfg, logging.Discard, logger).deps.Refresh()

		printDoctor(cmd.OutOrStdout(), cfg.BinDir(), st)
		if !st.Ready() {
			return fmt.Errorf("missing: %v", st.Missing())
		}
		return nil
	},
}

func printDoctor(w io.Writer, binDir string, st deps.Status) {
	fmt.Fprintln(w, dimStyle.Render("bin dir: "+binDir))
	rows := []struct {
		name string
		ok   bool
		path string
	}{
		{deps.FetcherName, st.FetcherAvailable, st.FetcherPath},
		{deps.TranscoderName, st.TranscoderAvailable, st.TranscoderPath},
		{deps.ProberName, st.ProberAvailable, st.ProberPath},
	}
	for _, r := range rows {
		if r.ok {
			fmt.Fprintf(w, "%s %-8s %s\n", okStyle.Render("✔"), r.name, r.path)
		} else {
			fmt.Fprintf(w, "%s %-8s %s\n", errorStyle.Render("✖"), r.name, dimStyle.Render("not found"))
		}
	}
	for _, msg := range st.ErrorMessages {
		fmt.Fprintln(w, errorStyle.Render("  "+msg))
	}
}
