// Package deps locates the external tools the pipeline shells out to and
// reports which of them are usable.
package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

const (
	FetcherName    = "yt-dlp"
	TranscoderName = "ffmpeg"
	ProberName     = "ffprobe"
)

// Locations tells the checker where to look. Explicit paths win over BinDir,
// which wins over PATH.
type Locations struct {
	BinDir     string
	Fetcher    string
	Transcoder string
	Prober     string
}

// Status is an immutable snapshot of tool availability. It is passed by
// value into every pipeline stage that needs a binary path.
type Status struct {
	FetcherAvailable    bool     `json:"fetcherAvailable"`
	TranscoderAvailable bool     `json:"transcoderAvailable"`
	ProberAvailable     bool     `json:"proberAvailable"`
	FetcherPath         string   `json:"fetcherPath"`
	TranscoderPath      string   `json:"transcoderPath"`
	ProberPath          string   `json:"proberPath"`
	ErrorMessages       []string `json:"errorMessages"`
}

// Ready reports whether every tool the pipeline needs was found.
func (s Status) Ready() bool {
	return s.FetcherAvailable && s.TranscoderAvailable && s.ProberAvailable
}

// Missing lists the names of tools that were not found.
func (s Status) Missing() []string {
	var missing []string
	if !s.FetcherAvailable {
		missing = append(missing, FetcherName)
	}
	if !s.TranscoderAvailable {
		missing = append(missing, TranscoderName)
	}
	if !s.ProberAvailable {
		missing = append(missing, ProberName)
	}
	return missing
}

// Checker resolves tool paths. It holds no mutable state, so repeated calls
// against an unchanged filesystem return identical results.
type Checker struct {
	loc      Locations
	goos     string
	lookPath func(string) (string, error)
}

func NewChecker(loc Locations) *Checker {
	return &Checker{loc: loc, goos: runtime.GOOS, lookPath: exec.LookPath}
}

// Check probes all three tools.
func (c *Checker) Check() Status {
	st := Status{ErrorMessages: []string{}}

	var err error
	st.FetcherPath, err = c.resolve(FetcherName, c.loc.Fetcher)
	st.FetcherAvailable = err == nil
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, err.Error())
	}

	st.TranscoderPath, err = c.resolve(TranscoderName, c.loc.Transcoder)
	st.TranscoderAvailable = err == nil
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, err.Error())
	}

	st.ProberPath, err = c.resolve(ProberName, c.loc.Prober)
	st.ProberAvailable = err == nil
	if err != nil {
		st.ErrorMessages = append(st.ErrorMessages, err.Error())
	}

	return st
}

// resolve returns the best candidate path for name. On failure the returned
// path is the location that was expected, for use in error reporting.
func (c *Checker) resolve(name, explicit string) (string, error) {
	if explicit != "" {
		if err := checkExecutable(explicit); err != nil {
			return explicit, fmt.Errorf("%s not found at %s: %w", name, explicit, err)
		}
		return explicit, nil
	}

	var bundled string
	if c.loc.BinDir != "" {
		bundled = filepath.Join(c.loc.BinDir, c.executableName(name))
		if checkExecutable(bundled) == nil {
			return bundled, nil
		}
	}

	if p, err := c.lookPath(name); err == nil {
		return p, nil
	}

	if bundled != "" {
		return bundled, fmt.Errorf("%s not found at %s or on PATH", name, bundled)
	}
	return "", fmt.Errorf("%s not found on PATH", name)
}

func (c *Checker) executableName(name string) string {
	if c.goos == "windows" {
		return name + ".exe"
	}
	return name
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return errors.New("is a directory")
	}
	return nil
}
