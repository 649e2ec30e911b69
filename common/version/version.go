// Package version holds build-time version information.
package version

// These variables are set at build time via -ldflags:
//
//	go build -ldflags "-X github.com/ontime-erp/assistant/common/version.Version=v0.3.0"
var (
	// Version is the semantic version of the build.
	Version = "dev"
	// GitCommit is the short commit hash the binary was built from.
	GitCommit = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)
