// Package version carries the build identity reported by `--version` and
// attached to OTEL resource attributes and run-history rows.
package version

// Version and Commit are overridden at build time via -ldflags
// "-X github.com/octohaul/forge-backup/internal/version.Version=... -X .../Commit=...".
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the identity as "<version> (<commit>)".
func String() string {
	return Version + " (" + Commit + ")"
}
