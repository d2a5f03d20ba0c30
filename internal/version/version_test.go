package version

import (
	"runtime/debug"
	"testing"
)

func TestApplySettings(t *testing.T) {
	info := Info{GitCommit: "unknown", BuildDate: "unknown"}
	applySettings(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		{Key: "vcs.modified", Value: "true"},
	})

	if info.GitCommit != "0123456789abcdef" {
		t.Errorf("GitCommit = %q", info.GitCommit)
	}
	if info.BuildDate != "2026-01-02T03:04:05Z" {
		t.Errorf("BuildDate = %q", info.BuildDate)
	}
	if !info.Modified {
		t.Error("Modified = false")
	}
}

func TestApplySettingsKeepsLdflags(t *testing.T) {
	info := Info{GitCommit: "abc1234", BuildDate: "yesterday"}
	applySettings(&info, []debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
	})

	if info.GitCommit != "abc1234" || info.BuildDate != "yesterday" {
		t.Errorf("ldflags values overwritten: %+v", info)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version {
		t.Errorf("Version = %q, want %q", info.Version, Version)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("runtime fields empty: %+v", info)
	}
	if String() == "" {
		t.Error("String() is empty")
	}
}
