package cmd

import (
	"fmt"
	"strings"

	"github.com/smazurov/capturenode/internal/ffmpeg"
)

// formatProgress renders the decoded fields of p on one line.
func formatProgress(p ffmpeg.Progress) string {
	var parts []string
	if p.Fields.Has(ffmpeg.FieldFrame) {
		parts = append(parts, fmt.Sprintf("frame=%d", p.Frame))
	}
	if p.Fields.Has(ffmpeg.FieldFPS) {
		parts = append(parts, fmt.Sprintf("fps=%.2f", p.FPS))
	}
	if p.Fields.Has(ffmpeg.FieldSize) {
		parts = append(parts, fmt.Sprintf("size=%dB", p.Size))
	}
	if p.Fields.Has(ffmpeg.FieldTime) {
		parts = append(parts, fmt.Sprintf("time=%s", p.Time))
	}
	if p.Fields.Has(ffmpeg.FieldBitrate) {
		parts = append(parts, fmt.Sprintf("bitrate=%.0fbps", p.Bitrate))
	}
	if p.Fields.Has(ffmpeg.FieldSpeed) {
		parts = append(parts, fmt.Sprintf("speed=%.3gx", p.Speed))
	}
	return strings.Join(parts, " ")
}

// progressJSON is the decode --json output record.
type progressJSON struct {
	Frame       *uint64  `json:"frame,omitempty"`
	FPS         *float64 `json:"fps,omitempty"`
	SizeBytes   *int64   `json:"size_bytes,omitempty"`
	TimeSeconds *float64 `json:"time_seconds,omitempty"`
	BitrateBPS  *float64 `json:"bitrate_bps,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
}

func toJSON(p ffmpeg.Progress) progressJSON {
	var out progressJSON
	if p.Fields.Has(ffmpeg.FieldFrame) {
		out.Frame = &p.Frame
	}
	if p.Fields.Has(ffmpeg.FieldFPS) {
		out.FPS = &p.FPS
	}
	if p.Fields.Has(ffmpeg.FieldSize) {
		out.SizeBytes = &p.Size
	}
	if p.Fields.Has(ffmpeg.FieldTime) {
		secs := p.Time.Seconds()
		out.TimeSeconds = &secs
	}
	if p.Fields.Has(ffmpeg.FieldBitrate) {
		out.BitrateBPS = &p.Bitrate
	}
	if p.Fields.Has(ffmpeg.FieldSpeed) {
		out.Speed = &p.Speed
	}
	return out
}
