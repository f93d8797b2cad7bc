// Package versions provides version information for the gateway.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

const unknownStr = "unknown"

// Version, Commit, and BuildDate are injected at build time via ldflags.
var (
	// Version is the current version of the gateway.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = unknownStr
	// BuildDate is the build timestamp in RFC 3339 form.
	BuildDate = unknownStr
)

// VersionInfo represents the version information of the running binary.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information, resolving development
// builds to a build-<commit> pseudo version when possible.
func GetVersionInfo() VersionInfo {
	version := Version
	buildDate := BuildDate

	if version == "dev" {
		rev := Commit
		if rev == unknownStr {
			if bi, ok := debug.ReadBuildInfo(); ok {
				for _, setting := range bi.Settings {
					if setting.Key == "vcs.revision" && setting.Value != "" {
						rev = setting.Value
					}
				}
			}
		}
		if len(rev) > 8 {
			rev = rev[:8]
		}
		version = "build-" + rev
	}

	if buildDate != unknownStr {
		if parsed, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = parsed.UTC().Format("2006-01-02 15:04:05") + " UTC"
		}
	}

	return VersionInfo{
		Version:   version,
		Commit:    Commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
