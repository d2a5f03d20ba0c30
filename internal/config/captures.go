package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/capturenode/internal/capture"
)

// capturesFile is the on-disk layout:
//
//	[captures.front]
//	source = "rtsp://192.168.0.10:554/stream"
//	destination = "/var/lib/capturenode/front.ts"
type capturesFile struct {
	Captures map[string]capture.Spec `toml:"captures"`
}

// LoadCaptures reads and validates the capture definitions file. Unknown keys
// are rejected so typos do not silently disable a capture.
func LoadCaptures(path string) (map[string]capture.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read captures file: %w", err)
	}
	return ParseCaptures(data)
}

// ParseCaptures decodes a capture definitions document.
func ParseCaptures(data []byte) (map[string]capture.Spec, error) {
	var file capturesFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("parse captures file: %s", strict.String())
		}
		return nil, fmt.Errorf("parse captures file: %w", err)
	}

	specs := make(map[string]capture.Spec, len(file.Captures))
	var errs []error
	for name, spec := range file.Captures {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("capture with empty name"))
			continue
		}
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("capture %q: %w", name, err))
			continue
		}
		specs[name] = spec
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return specs, nil
}
