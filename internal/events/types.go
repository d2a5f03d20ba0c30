package events

import "time"

// Event type identifiers for kelindar/event.
const (
	TypeCaptureStateChanged uint32 = iota + 1
	TypeCaptureProgress
	TypeCaptureLaunchFailed
)

// Event is implemented by everything published on the Bus.
type Event interface {
	Type() uint32
}

// CaptureStateChangedEvent is published on every capture lifecycle transition.
type CaptureStateChangedEvent struct {
	CaptureID uint64    `json:"capture_id"`
	Source    string    `json:"source"` // redacted, never carries credentials
	OldState  string    `json:"old_state"`
	NewState  string    `json:"new_state"`
	ExitCode  int       `json:"exit_code,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Type implements Event.
func (e CaptureStateChangedEvent) Type() uint32 { return TypeCaptureStateChanged }

// CaptureProgressEvent carries one progress record of a capture.
type CaptureProgressEvent struct {
	CaptureID   uint64        `json:"capture_id"`
	Frame       uint64        `json:"frame"`
	FPS         float64       `json:"fps"`
	OutputBytes int64         `json:"output_bytes"`
	Encoded     time.Duration `json:"encoded"`
	Bitrate     float64       `json:"bitrate"`
	Speed       float64       `json:"speed"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Type implements Event.
func (e CaptureProgressEvent) Type() uint32 { return TypeCaptureProgress }

// CaptureLaunchFailedEvent is published when a capture process could not be started.
type CaptureLaunchFailedEvent struct {
	Source    string    `json:"source"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Type implements Event.
func (e CaptureLaunchFailedEvent) Type() uint32 { return TypeCaptureLaunchFailed }
