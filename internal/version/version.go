// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

// String renders the build identity for health reports and startup logs.
func String() string {
	return Version + " (" + Commit + ")"
}
