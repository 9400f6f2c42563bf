package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	t.Cleanup(func() { readBuildInfo = debug.ReadBuildInfo })
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
}

func TestCurrentKeepsLinkerVersion(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v9.9.9"}})
	t.Cleanup(func() { Version = devVersion })
	Version = "1.2.3"

	if got := Current().Version; got != "1.2.3" {
		t.Fatalf("expected linker version, got %q", got)
	}
}

func TestCurrentUsesModuleVersion(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "v1.4.0"}})

	if got := Current().Version; got != "v1.4.0" {
		t.Fatalf("expected module version, got %q", got)
	}
}

func TestCurrentFallsBackToRevision(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abcdef1234567890"},
			{Key: "vcs.modified", Value: "true"},
		},
	})

	build := Current()
	if build.Version != "devel+abcdef123456" {
		t.Fatalf("expected revision fallback, got %q", build.Version)
	}
	if !strings.Contains(build.String(), "rev abcdef123456-dirty") {
		t.Fatalf("expected dirty revision in %q", build.String())
	}
}

func TestCurrentWithoutBuildInfo(t *testing.T) {
	stubBuildInfo(t, nil)

	build := Current()
	if build.Version != devVersion || build.Revision != "" {
		t.Fatalf("unexpected build %+v", build)
	}
}

func TestBuildString(t *testing.T) {
	if got := (Build{Version: "1.0.0"}).String(); got != "check-cluster 1.0.0" {
		t.Fatalf("unexpected string %q", got)
	}
	if got := (Build{Version: "1.0.0", GoVersion: "go1.22.0"}).String(); got != "check-cluster 1.0.0 (go1.22.0)" {
		t.Fatalf("unexpected string %q", got)
	}
}

func TestUserAgentCarriesVersion(t *testing.T) {
	stubBuildInfo(t, nil)
	if got := UserAgent(); got != "check-cluster/"+devVersion {
		t.Fatalf("unexpected user agent %q", got)
	}
}
