/*
Package version reports build information for tool-optimizer and checks
GitHub for newer releases.

Build values are injected with ldflags:

	go build -ldflags "-X github.com/khanglvm/tool-optimizer-mcp/internal/version.Version=v1.2.0 \
	  -X github.com/khanglvm/tool-optimizer-mcp/internal/version.Commit=$(git rev-parse --short HEAD) \
	  -X github.com/khanglvm/tool-optimizer-mcp/internal/version.Date=$(date -u +%Y-%m-%d)"
*/
package version

import "fmt"

const devVersion = "dev"

// Build information. Unset values describe a development build.
var (
	Version = devVersion
	Commit  = "none"
	Date    = "unknown"
)

// IsDev reports whether the binary was built without a release version.
func IsDev() bool {
	return Version == devVersion
}

// GetVersion returns the formatted build information.
func GetVersion() string {
	return FormatVersion(Version, Commit, Date)
}

// FormatVersion formats version components into a display string.
func FormatVersion(version, commit, date string) string {
	if version == devVersion {
		return version + " (development build)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// GetVersionComponents returns the raw build values.
func GetVersionComponents() (version, commit, date string) {
	return Version, Commit, Date
}

// UserAgent identifies outgoing release checks.
func UserAgent() string {
	return "tool-optimizer/" + Version
}
