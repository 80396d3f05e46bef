package app

import (
	"fmt"
	"runtime"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X github.com/tejashwikalptaru/dtune/internal/app.Version=1.0.0" ./cmd
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitTag    = ""
	BuildTime = "unknown"
)

// VersionInfo describes the running build.
type VersionInfo struct {
	Version   string
	GitCommit string
	GitTag    string
	BuildTime string
	GoVersion string
	Platform  string
}

// GetVersionInfo returns the build information of this binary.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GitTag:    GitTag,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// FullString returns a one-line version string for logging. A git tag, when
// present, takes precedence over Version.
func (v VersionInfo) FullString() string {
	version := v.Version
	if v.GitTag != "" {
		version = v.GitTag
	}
	return fmt.Sprintf("dtune %s (commit: %s, built: %s)", version, v.GitCommit, v.BuildTime)
}
