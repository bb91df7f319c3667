// Package version carries build identity stamped in at link time.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set at build time using -ldflags.
var (
	// Version is the semantic version of the application.
	Version = "dev"

	// GitCommit is the git commit hash when the binary was built.
	GitCommit = "unknown"

	// BuildTime is when the binary was built (RFC3339 format).
	BuildTime = "unknown"
)

// String renders a single-line version summary.
func String() string {
	return fmt.Sprintf("warden %s (commit %s, built %s, %s %s/%s)",
		Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
