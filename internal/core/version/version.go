// Package version provides information about the build version of the binary.
package version

import (
	"runtime"
	"runtime/debug"
)

// BuildInfo holds version information about the build.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Set via -ldflags "-X 'github.com/oscar-project/ungoliant/internal/core/version.version=v0.3.0'
// -X '...version.commit=abcd' -X '...version.date=2026-01-31'"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Info returns the build information; commit falls back to the VCS stamp go build embeds
func Info() BuildInfo {
	c := commit
	if c == "none" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 7 {
					c = s.Value[:7]
				}
			}
		}
	}
	return BuildInfo{
		Service: "ungoliant",
		Version: version,
		Commit:  c,
		Date:    date,
		Go:      runtime.Version(),
	}
}

// String renders "ungoliant <version> (<commit>, <date>)"
func (b BuildInfo) String() string {
	return b.Service + " " + b.Version + " (" + b.Commit + ", " + b.Date + ")"
}
