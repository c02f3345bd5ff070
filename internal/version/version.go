// Package version reports which build of scout is running.
//
// Release builds stamp the variables with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/market-scout/internal/version.Version=0.3.1 \
//	                   -X github.com/rickgao/market-scout/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/market-scout/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/scout
//
// Unstamped builds fall back to the VCS settings embedded by the go tool.
package version

import (
	"runtime"
	"runtime/debug"
)

const (
	unstampedVersion = "dev"
	unknown          = "unknown"
)

// Set via ldflags.
var (
	Version   = unstampedVersion
	Commit    = unknown
	BuildTime = unknown
)

var readBuildInfo = debug.ReadBuildInfo

// Info describes one build of the binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

// Get returns the stamped build information. Fields left unstamped are taken
// from the module version and vcs.* settings when the binary carries them.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if bi.GoVersion != "" {
		info.GoVersion = bi.GoVersion
	}
	if info.Version == unstampedVersion && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == unknown {
				info.Commit = shortRevision(s.Value)
			}
		case "vcs.time":
			if info.BuildTime == unknown {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// String formats the build as "version (commit) built time". A build from a
// modified tree gets a "-dirty" commit suffix.
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return i.Version + " (" + commit + ") built " + i.BuildTime
}

// LogAttrs returns the build as slog key-value pairs.
func (i Info) LogAttrs() []any {
	return []any{
		"version", i.Version,
		"commit", i.Commit,
		"build_time", i.BuildTime,
		"go", i.GoVersion,
	}
}

// String returns the formatted current build.
func String() string {
	return Get().String()
}
