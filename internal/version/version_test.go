package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	t.Parallel()
	info := resolve(func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.26.0",
			Main:      debug.Module{Version: "v0.3.1"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			},
		}, true
	})
	// package vars are empty in tests
	want := Info{Version: "v0.3.1", Commit: "0123456789abcdef0123", BuildTime: "2026-10-01T12:00:00Z", GoVersion: "go1.26.0"}
	if info != want {
		t.Fatalf("got %+v want %+v", info, want)
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	t.Parallel()
	info := resolve(func() (*debug.BuildInfo, bool) { return nil, false })
	if info.Version != "dev" {
		t.Fatalf("version %q want dev", info.Version)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("got %q", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
