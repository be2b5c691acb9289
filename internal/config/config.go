// Package config provides configuration management for the clipforge agent.
// Configuration is loaded from an optional .env file and environment variables
// with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8797
	DefaultLogLevel = "info"
	DefaultDataDir  = ".clipforge"

	// Environment variable names
	EnvPort     = "CLIPFORGE_PORT"
	EnvLogLevel = "CLIPFORGE_LOG_LEVEL"
	EnvDataDir  = "CLIPFORGE_DATA_DIR"
	EnvHeadless = "CLIPFORGE_HEADLESS"

	// External tool environment variable names
	EnvBinDir      = "CLIPFORGE_BIN_DIR"
	EnvYtDlpPath   = "CLIPFORGE_YTDLP_PATH"
	EnvFFmpegPath  = "CLIPFORGE_FFMPEG_PATH"
	EnvFFprobePath = "CLIPFORGE_FFPROBE_PATH"

	// Subprocess policy environment variable names
	EnvHangTimeout  = "CLIPFORGE_HANG_TIMEOUT"
	EnvHardTimeout  = "CLIPFORGE_HARD_TIMEOUT"
	EnvFetchTimeout = "CLIPFORGE_FETCH_TIMEOUT"

	EnvDownloadDir = "CLIPFORGE_DOWNLOAD_DIR"

	// Database filename
	DBFilename = "clipforge.db"

	// Durable progress log filename, relative to the logs dir
	LogFilename = "clipforge.log"

	// Subprocess defaults
	DefaultHangTimeout  = 60 * time.Second
	DefaultHardTimeout  = 5 * time.Minute
	DefaultFetchTimeout = 2 * time.Minute
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	LogPath() string
	BinDir() string
	YtDlpPath() string
	FFmpegPath() string
	FFprobePath() string
	HangTimeout() time.Duration
	HardTimeout() time.Duration
	FetchTimeout() time.Duration
	DownloadDir() string
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	headless bool

	binDir      string
	ytDlpPath   string
	ffmpegPath  string
	ffprobePath string

	hangTimeout  time.Duration
	hardTimeout  time.Duration
	fetchTimeout time.Duration

	downloadDir string
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// Values from a .env file in the working directory are loaded first; variables
// already present in the environment take precedence.
func New() (*EnvConfig, error) {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		hangTimeout:  DefaultHangTimeout,
		hardTimeout:  DefaultHardTimeout,
		fetchTimeout: DefaultFetchTimeout,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	cfg.binDir = os.Getenv(EnvBinDir)
	cfg.ytDlpPath = os.Getenv(EnvYtDlpPath)
	cfg.ffmpegPath = os.Getenv(EnvFFmpegPath)
	cfg.ffprobePath = os.Getenv(EnvFFprobePath)
	cfg.downloadDir = os.Getenv(EnvDownloadDir)

	var err error
	if cfg.hangTimeout, err = durationEnv(EnvHangTimeout, cfg.hangTimeout); err != nil {
		return nil, err
	}
	if cfg.hardTimeout, err = durationEnv(EnvHardTimeout, cfg.hardTimeout); err != nil {
		return nil, err
	}
	if cfg.fetchTimeout, err = durationEnv(EnvFetchTimeout, cfg.fetchTimeout); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationEnv parses a Go duration string ("90s", "10m"). Zero disables the
// corresponding watchdog; negative values are rejected.
func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return d, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// LogPath returns the path of the durable append-only progress log
func (c *EnvConfig) LogPath() string {
	return filepath.Join(c.dataDir, "logs", LogFilename)
}

// BinDir returns the directory searched for bundled tool binaries
func (c *EnvConfig) BinDir() string {
	if c.binDir != "" {
		return c.binDir
	}
	return filepath.Join(c.dataDir, "bin")
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytDlpPath
}

func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpegPath
}

func (c *EnvConfig) FFprobePath() string {
	return c.ffprobePath
}

func (c *EnvConfig) HangTimeout() time.Duration {
	return c.hangTimeout
}

func (c *EnvConfig) HardTimeout() time.Duration {
	return c.hardTimeout
}

func (c *EnvConfig) FetchTimeout() time.Duration {
	return c.fetchTimeout
}

// DownloadDir returns the configured default download location, or empty
// when the platform default should be used.
func (c *EnvConfig) DownloadDir() string {
	return c.downloadDir
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// SetHeadless overrides the headless flag, used by the --headless CLI flag.
func (c *EnvConfig) SetHeadless(v bool) {
	c.headless = v
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
