package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/smazurov/capturenode/internal/capture"
)

func TestLoadCaptures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "captures.toml")
	writeFile(t, path, twoCaptures)

	specs, err := LoadCaptures(path)
	if err != nil {
		t.Fatalf("LoadCaptures() error = %v", err)
	}
	want := map[string]capture.Spec{
		"front": {Source: "rtsp://192.168.0.10:554/stream", Destination: "front.ts"},
		"back":  {Source: "rtsp://192.168.0.11:554/stream", Destination: "back.ts"},
	}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("LoadCaptures() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCapturesMissingFile(t *testing.T) {
	_, err := LoadCaptures(filepath.Join(t.TempDir(), "captures.toml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadCaptures() error = %v, want os.ErrNotExist", err)
	}
}

func TestParseCapturesEmpty(t *testing.T) {
	specs, err := ParseCaptures(nil)
	if err != nil {
		t.Fatalf("ParseCaptures() error = %v", err)
	}
	if len(specs) != 0 {
		t.Errorf("ParseCaptures(nil) = %v", specs)
	}
}

func TestParseCapturesErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown key", "[captures.front]\nsource = \"rtsp://a\"\ndestination = \"a.ts\"\ncodec = \"h264\"\n", "codec"},
		{"missing destination", "[captures.front]\nsource = \"rtsp://a\"\n", `capture "front"`},
		{"empty source", "[captures.back]\nsource = \"\"\ndestination = \"b.ts\"\n", "empty source"},
		{"malformed", "[captures.front\n", "parse captures file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCaptures([]byte(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseCaptures() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseCapturesInvalidSpecIsTyped(t *testing.T) {
	_, err := ParseCaptures([]byte("[captures.front]\nsource = \"rtsp://a\"\n"))
	if !errors.Is(err, capture.ErrInvalidSpec) {
		t.Errorf("ParseCaptures() error = %v, want capture.ErrInvalidSpec", err)
	}
}
