// Package version holds build-time version information for the pluginfilter
// binary. Release builds inject the values via -ldflags:
//
// -X github.com/ferro-labs/plugin-filter/internal/version.Version=v0.1.0
// -X github.com/ferro-labs/plugin-filter/internal/version.Commit=abc1234
// -X github.com/ferro-labs/plugin-filter/internal/version.Date=2026-10-17T00:00:00Z
package version

import "fmt"

// Set at link time. Local builds keep the dev values.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns a single-line human-readable version string, e.g.:
//
// v0.1.0 (commit abc1234, built 2026-10-17T12:00:00Z)
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// Short returns just the version tag, e.g. "v0.1.0" or "dev".
func Short() string {
	return Version
}

// UserAgent is the default User-Agent sent with every probe.
func UserAgent() string {
	return "pluginfilter/" + Version + " (+https://github.com/ferro-labs/plugin-filter)"
}
