package capture

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for identifiers not in the registry.
	ErrNotFound = errors.New("capture not found")
	// ErrClosed is returned by Start once Shutdown has begun.
	ErrClosed = errors.New("supervisor is shut down")
	// ErrNotResolved is returned by Discard while the process is still alive.
	ErrNotResolved = errors.New("capture has not exited")
	// ErrInvalidSpec marks a Spec rejected before launch.
	ErrInvalidSpec = errors.New("invalid capture spec")
)

// LaunchError reports a capture process that could not be started.
// No process exists and the registry is unchanged.
type LaunchError struct {
	Spec Spec
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch capture of %s: %v", e.Spec.RedactedSource(), e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// StreamError reports a misbehaving progress stream. The capture is ended
// and its handle marked failed.
type StreamError struct {
	ID  ID
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("capture %s progress stream: %v", e.ID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError lists captures whose process could not be reaped
// within the stop and kill timeouts.
type ShutdownTimeoutError struct {
	IDs []ID
}

func (e *ShutdownTimeoutError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("captures did not terminate: %s", strings.Join(ids, ", "))
}
