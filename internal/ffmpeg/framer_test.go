package ffmpeg

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

type collected struct {
	records     []string
	diagnostics []string
}

func newCollectingFramer(maxLine int) (*Framer, *collected) {
	c := &collected{}
	f := NewFramer(maxLine,
		func(line []byte) { c.records = append(c.records, string(line)) },
		func(line []byte) { c.diagnostics = append(c.diagnostics, string(line)) },
	)
	return f, c
}

func TestFramerSplitsRecordsAndDiagnostics(t *testing.T) {
	f, c := newCollectingFramer(0)
	p := NewProgressParser(testLogger())

	if _, err := io.Copy(f, strings.NewReader("frame=1 fps=25\rfoo\nframe=2 fps=26\r")); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	f.Flush()

	if len(c.records) != 2 {
		t.Fatalf("got %d records, want 2: %q", len(c.records), c.records)
	}
	var frames []uint64
	for _, line := range c.records {
		st, ok := p.Parse(line)
		if !ok {
			t.Fatalf("record %q did not parse", line)
		}
		frames = append(frames, st.Frame)
	}
	if frames[0] != 1 || frames[1] != 2 {
		t.Errorf("frames = %v, want [1 2]", frames)
	}
	if len(c.diagnostics) != 1 || c.diagnostics[0] != "foo" {
		t.Errorf("diagnostics = %q, want [foo]", c.diagnostics)
	}
}

func TestFramerByteAtATime(t *testing.T) {
	f, c := newCollectingFramer(0)
	input := []byte("frame=1\r\nsome log\nframe=2\r")

	for i := range input {
		if _, err := f.Write(input[i : i+1]); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	if want := []string{"frame=1", "frame=2"}; !equalStrings(c.records, want) {
		t.Errorf("records = %q, want %q", c.records, want)
	}
	if want := []string{"some log"}; !equalStrings(c.diagnostics, want) {
		t.Errorf("diagnostics = %q, want %q", c.diagnostics, want)
	}
}

func TestFramerEmptyLinesIgnored(t *testing.T) {
	f, c := newCollectingFramer(0)
	if _, err := f.Write([]byte("\r\r\n\n\r\n")); err != nil {
		t.Fatal(err)
	}
	if len(c.records) != 0 || len(c.diagnostics) != 0 {
		t.Errorf("expected nothing, got records=%q diagnostics=%q", c.records, c.diagnostics)
	}
}

func TestFramerFlushTrailingLine(t *testing.T) {
	f, c := newCollectingFramer(0)
	if _, err := f.Write([]byte("frame=1\rexiting normally")); err != nil {
		t.Fatal(err)
	}
	if len(f.buf) == 0 {
		t.Fatal("expected a buffered partial line")
	}
	f.Flush()

	if len(c.records) != 1 {
		t.Errorf("records = %q, want one", c.records)
	}
	if want := []string{"exiting normally"}; !equalStrings(c.diagnostics, want) {
		t.Errorf("diagnostics = %q, want %q", c.diagnostics, want)
	}
}

func TestFramerLineTooLong(t *testing.T) {
	f, c := newCollectingFramer(16)

	_, err := io.Copy(f, bytes.NewReader(bytes.Repeat([]byte("x"), 100)))
	if !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	if len(f.buf) != 0 {
		t.Errorf("buffer not released, %d bytes", len(f.buf))
	}
	if len(c.records) != 0 {
		t.Errorf("no record expected, got %q", c.records)
	}
}

func TestFramerLineAtLimit(t *testing.T) {
	f, c := newCollectingFramer(8)
	if _, err := f.Write([]byte("frame=12\r")); err != nil {
		t.Fatalf("line at the limit should be accepted: %v", err)
	}
	if len(c.records) != 1 {
		t.Errorf("records = %q", c.records)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
