// Package version exposes build information injected with ldflags:
//
//	-X github.com/HerbHall/netwatch/internal/version.Version=1.2.0
package version

import (
	"fmt"
	"runtime"
)

// Set at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns the --version line.
func Info() string {
	return fmt.Sprintf("netwatch %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}

// Short returns the bare version, e.g. "1.2.0" or "dev".
func Short() string {
	return Version
}

// UserAgent is sent by outbound HTTP checks.
func UserAgent() string {
	return "netwatch/" + Version
}

// Map returns build information for the health endpoint.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}
