// Package buildtime holds values fixed when roundup is built.
//
// VERSION and revision are overwritten by the release build.
// When revision is left as "HEAD", the vcs revision stamped by the go command is used.
package buildtime

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var version string

//go:embed revision
var revision string

func init() {
	version = strings.TrimSpace(version)
	revision = resolveRevision(strings.TrimSpace(revision), debug.ReadBuildInfo)
}

func resolveRevision(embedded string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if embedded != "" && embedded != "HEAD" {
		return embedded
	}
	info, ok := buildInfo()
	if !ok {
		return embedded
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return embedded
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

// version string when this roundup has been built.
func VERSION() string {
	return version
}

func GIT_REVISION() string {
	return revision
}

// "v0.1.0 (commit: 0123abc)"
func VersionString() string {
	return version + " (commit: " + revision + ")"
}
