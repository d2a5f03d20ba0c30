package ffmpeg

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxLineBytes bounds a single unterminated line.
const DefaultMaxLineBytes = 64 << 10

// ErrLineTooLong is returned when the stream exceeds the line bound without a terminator.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Framer splits an ffmpeg stderr stream into lines. ffmpeg rewrites its
// progress line in place, so a carriage return terminates a progress record
// and a line feed terminates an ordinary diagnostic line.
//
// Framer implements io.Writer so it can be fed with io.Copy. Handlers receive
// a slice that is only valid for the duration of the call.
type Framer struct {
	onRecord     func(line []byte)
	onDiagnostic func(line []byte)
	maxLine      int
	buf          []byte
}

// NewFramer creates a Framer. Either handler may be nil.
// maxLine <= 0 selects DefaultMaxLineBytes.
func NewFramer(maxLine int, onRecord, onDiagnostic func(line []byte)) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	return &Framer{
		onRecord:     onRecord,
		onDiagnostic: onDiagnostic,
		maxLine:      maxLine,
		buf:          make([]byte, 0, 256),
	}
}

// Write consumes p. It fails with ErrLineTooLong once the buffered line
// would exceed the bound; the partial line is dropped.
func (f *Framer) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		i := bytes.IndexAny(p, "\r\n")
		if i < 0 {
			if err := f.append(p); err != nil {
				return written, err
			}
			written += len(p)
			break
		}
		if err := f.append(p[:i]); err != nil {
			return written, err
		}
		f.terminate(p[i])
		written += i + 1
		p = p[i+1:]
	}
	return written, nil
}

// Flush hands an unterminated trailing line to the diagnostic handler.
// Called at end of stream.
func (f *Framer) Flush() {
	f.terminate('\n')
}

func (f *Framer) append(p []byte) error {
	if len(f.buf)+len(p) > f.maxLine {
		size := len(f.buf) + len(p)
		f.buf = f.buf[:0]
		return fmt.Errorf("%w: %d bytes without terminator (limit %d)", ErrLineTooLong, size, f.maxLine)
	}
	f.buf = append(f.buf, p...)
	return nil
}

func (f *Framer) terminate(b byte) {
	if len(f.buf) == 0 {
		return
	}
	if b == '\r' {
		if f.onRecord != nil {
			f.onRecord(f.buf)
		}
	} else if f.onDiagnostic != nil {
		f.onDiagnostic(f.buf)
	}
	f.buf = f.buf[:0]
}
