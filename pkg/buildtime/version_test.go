package buildtime

import (
	"runtime/debug"
	"testing"
)

func TestResolveRevision(t *testing.T) {
	withSettings := func(ok bool, settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
		return func() (*debug.BuildInfo, bool) {
			if !ok {
				return nil, false
			}
			return &debug.BuildInfo{Settings: settings}, true
		}
	}

	type when struct {
		embedded  string
		buildInfo func() (*debug.BuildInfo, bool)
	}
	theory := func(when when, then string) func(*testing.T) {
		return func(t *testing.T) {
			if actual := resolveRevision(when.embedded, when.buildInfo); actual != then {
				t.Errorf("revision = %q, want %q", actual, then)
			}
		}
	}

	t.Run("embedded revision wins", theory(
		when{
			embedded:  "0123abc",
			buildInfo: withSettings(true, debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9"}),
		},
		"0123abc",
	))
	t.Run("HEAD is replaced with vcs revision", theory(
		when{
			embedded:  "HEAD",
			buildInfo: withSettings(true, debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9"}),
		},
		"fedcba9",
	))
	t.Run("modified tree is marked dirty", theory(
		when{
			embedded: "HEAD",
			buildInfo: withSettings(
				true,
				debug.BuildSetting{Key: "vcs.revision", Value: "fedcba9"},
				debug.BuildSetting{Key: "vcs.modified", Value: "true"},
			),
		},
		"fedcba9-dirty",
	))
	t.Run("HEAD is kept without vcs info", theory(
		when{embedded: "HEAD", buildInfo: withSettings(true)},
		"HEAD",
	))
	t.Run("HEAD is kept without build info", theory(
		when{embedded: "HEAD", buildInfo: withSettings(false)},
		"HEAD",
	))
}
