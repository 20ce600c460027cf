package version

import "fmt"

var (
	// Version is the current application version.
	// It is populated by the build system through ldflags.
	Version = "v1.0.0"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("hdhr-xmltv %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is sent with every outgoing HTTP request.
func UserAgent() string {
	return "hdhr-xmltv/" + Version
}
