// Package logging provides slog loggers with per-module levels.
//
// Initialize once at startup, then ask for a logger per module:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"capture": "debug",
//			"ffmpeg":  "warn",
//		},
//	})
//	logger := logging.GetLogger("capture").With("capture_id", id)
//
// Records go to stdout and, when journald is reachable, to the systemd
// journal under the identifier "capturenode":
//
//	journalctl -t capturenode MODULE=capture
//	journalctl -t capturenode CAPTURE_ID=3 -p warning
//
// Equivalent TOML:
//
//	[logging]
//	level = "info"
//	format = "json"
//	ffmpeg = "warn"
package logging
