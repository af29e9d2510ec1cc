package resilience

import (
	"fmt"
	"runtime"
)

// Build metadata, overridable through -ldflags.
var (
	Version   = "v1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GetVersion returns a human-readable build description.
func GetVersion() string {
	return fmt.Sprintf("tab-mcp %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildDate, runtime.Version())
}
