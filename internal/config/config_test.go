package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Binary      string   `toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`
	Watch       bool     `toml:"capture.watch" env:"CAPTURE_WATCH"`
	MaxLine     int      `toml:"capture.max_line_bytes" env:"CAPTURE_MAX_LINE_BYTES"`
	StopTimeout string   `toml:"capture.stop_timeout" env:"CAPTURE_STOP_TIMEOUT"`
	Tags        []string `toml:"capture.tags" env:"CAPTURE_TAGS"`
	Untagged    string
}

const optionsFile = `
[ffmpeg]
binary = "/usr/local/bin/ffmpeg"

[capture]
watch = true
max_line_bytes = 4096
stop_timeout = "15s"
tags = ["lab", "roof"]
`

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturenode.toml")
	writeFile(t, path, optionsFile)

	opts := &testOptions{Config: path, Untagged: "kept"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := &testOptions{
		Config:      path,
		Binary:      "/usr/local/bin/ffmpeg",
		Watch:       true,
		MaxLine:     4096,
		StopTimeout: "15s",
		Tags:        []string{"lab", "roof"},
		Untagged:    "kept",
	}
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("LoadConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturenode.toml")
	writeFile(t, path, optionsFile)

	t.Setenv("CAPTURENODE_FFMPEG_BINARY", "/opt/ffmpeg")
	t.Setenv("CAPTURENODE_CAPTURE_WATCH", "false")
	t.Setenv("CAPTURENODE_CAPTURE_TAGS", "a, b")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Binary != "/opt/ffmpeg" {
		t.Errorf("Binary = %q, want env value", opts.Binary)
	}
	if opts.Watch {
		t.Error("Watch = true, want env value false")
	}
	if diff := cmp.Diff([]string{"a", "b"}, opts.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if opts.MaxLine != 4096 {
		t.Errorf("MaxLine = %d, want file value", opts.MaxLine)
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturenode.toml")
	writeFile(t, path, optionsFile)
	t.Setenv("CAPTURENODE_FFMPEG_BINARY", "/opt/ffmpeg")

	opts := &testOptions{Config: path}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Binary, "binary", "ffmpeg", "")
	cmd.Flags().IntVar(&opts.MaxLine, "max-line", 0, "")
	if err := cmd.Flags().Parse([]string{"--binary", "/cli/ffmpeg"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Binary != "/cli/ffmpeg" {
		t.Errorf("Binary = %q, want CLI value", opts.Binary)
	}
	if opts.MaxLine != 4096 {
		t.Errorf("MaxLine = %d, unset flag should take file value", opts.MaxLine)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Binary: "ffmpeg"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Binary != "ffmpeg" {
		t.Errorf("Binary = %q, want default", opts.Binary)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		env     map[string]string
		wantErr string
	}{
		{"invalid toml", "[capture\n", nil, "parse"},
		{"wrong type in file", "[capture]\nmax_line_bytes = \"big\"\n", nil, "capture.max_line_bytes"},
		{"invalid env int", "", map[string]string{"CAPTURENODE_CAPTURE_MAX_LINE_BYTES": "lots"}, "CAPTURENODE_CAPTURE_MAX_LINE_BYTES"},
		{"invalid env bool", "", map[string]string{"CAPTURENODE_CAPTURE_WATCH": "maybe"}, "CAPTURENODE_CAPTURE_WATCH"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			writeFile(t, path, tt.file)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			err := LoadConfig(&testOptions{Config: path}, nil)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig(struct) succeeded")
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Config":           "config",
		"StopTimeout":      "stop-timeout",
		"MetricsListen":    "metrics-listen",
		"SubscriberBuffer": "subscriber-buffer",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capturenode.toml")
	writeFile(t, path, `
[logging]
level = "warn"
format = "json"
capture = "debug"
ffmpeg = "error"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("global = %s/%s, want warn/json", cfg.Level, cfg.Format)
	}
	want := map[string]string{"capture": "debug", "ffmpeg": "error"}
	if diff := cmp.Diff(want, cfg.Modules); diff != "" {
		t.Errorf("Modules mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLoggingConfigDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml")} {
		cfg := LoadLoggingConfig(path)
		if cfg.Level != "info" || cfg.Format != "text" || len(cfg.Modules) != 0 {
			t.Errorf("LoadLoggingConfig(%q) = %+v, want defaults", path, cfg)
		}
	}
}
