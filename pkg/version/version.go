// Package version holds build information injected at link time.
package version

import "fmt"

// Set with: go build -ldflags "-X localassist/pkg/version.Version=v0.2.0".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String formats the build information on one line.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}
