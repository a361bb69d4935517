// Package version holds build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/oskar-77/OskarTrackSystem33/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata on one line.
func String() string {
	return fmt.Sprintf("oskartrack %s (commit %s, built %s)", Version, GitSHA, BuildTime)
}
