package capture

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/capturenode/internal/ffmpeg"
)

// ID identifies a capture for the lifetime of its Supervisor.
type ID uint64

func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Spec describes what to capture. It is never mutated after creation.
type Spec struct {
	Source      string `toml:"source"`      // network source URI, may embed credentials
	Destination string `toml:"destination"` // writable path or sink
}

// Validate checks that both ends of the capture are set.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Source) == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidSpec)
	}
	if strings.TrimSpace(s.Destination) == "" {
		return fmt.Errorf("%w: empty destination", ErrInvalidSpec)
	}
	return nil
}

// RedactedSource returns the source with any password replaced, safe for logs.
func (s Spec) RedactedSource() string {
	u, err := url.Parse(s.Source)
	if err == nil && u.User != nil {
		return u.Redacted()
	}
	if strings.Contains(s.Source, "@") && (err != nil || u.Host == "") {
		return "[unparseable source]"
	}
	return s.Source
}

// State is the lifecycle state of a capture.
type State string

// Capture states.
const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateExited   State = "exited"
	StateFailed   State = "failed"
)

// Resolved reports whether the process has been waited on.
func (s State) Resolved() bool {
	return s == StateExited || s == StateFailed
}

// Info is a point-in-time snapshot of a Handle.
type Info struct {
	ID          ID
	Spec        Spec
	PID         int
	State       State
	ExitCode    int   // valid when State is StateExited
	Err         error // cause when State is StateFailed
	StartedAt   time.Time
	EndedAt     time.Time
	Progress    ffmpeg.Progress // latest merged progress record
	Diagnostics []string        // last diagnostic lines of an unclean exit
}
