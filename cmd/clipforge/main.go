package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "clipforge",
	Short: "Download a video once and cut it into clips",
	Long: `Clipforge downloads a source video with yt-dlp and cuts the requested
clips out of it with ffmpeg.

Without a subcommand it starts the local agent (HTTP API, job queue and
system tray).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveHeadless)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clipforge %s (commit %s, built %s)\n",
			config.Version, config.GitCommit, config.BuildTime)
	},
}

func init() {
	rootCmd.Flags().BoolVar(&serveHeadless, "headless", false, "run without the system tray")
	rootCmd.AddCommand(serveCmd, runCmd, doctorCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
