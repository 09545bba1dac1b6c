// Package version exposes build metadata stamped into the binary.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Stamped at build time via -ldflags "-X ryver/internal/version.Version=...".
// A plain `go build` leaves the dev defaults in place.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitTag    = ""
	BuildDate = "unknown"
	GitDirty  = ""

	GoVersion = runtime.Version()
)

// Info returns the human-readable version: the git tag when one was stamped,
// otherwise Version, with a -dirty suffix for builds from a modified tree.
func Info() string {
	v := Version
	if GitTag != "" && GitTag != "unknown" {
		v = GitTag
	}
	if GitDirty == "true" && !strings.Contains(v, "-dirty") {
		v += "-dirty"
	}
	return v
}

// Full returns Info plus the abbreviated commit hash when it adds anything.
func Full() string {
	info := Info()
	if GitCommit != "" && GitCommit != "unknown" && !strings.Contains(info, GitCommit[:7]) {
		info += fmt.Sprintf(" (%s)", GitCommit[:7])
	}
	return info
}

// UserAgent identifies this client in HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("ryver-go/%s", Info())
}
