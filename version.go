package reqcoord

import (
	"fmt"
	"runtime"
)

// Build metadata, overridable with -ldflags "-X github.com/mdshimul186/reqcoord.GitCommit=...".
var (
	Version   = "v0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns a one-line version banner.
func GetVersion() string {
	return fmt.Sprintf("reqcoord %s (%s, %s, %s)", Version, GitCommit, BuildDate, runtime.Version())
}

// GetVersionInfo returns build metadata for health endpoints and startup logs.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": runtime.Version(),
	}
}
