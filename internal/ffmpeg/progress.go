package ffmpeg

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/capturenode/internal/logging"
)

// ErrNotAvailable is returned for values ffmpeg reports as N/A.
var ErrNotAvailable = errors.New("value not available")

// Field identifies one progress field.
type Field uint8

// Progress fields recognized by ProgressParser.
const (
	FieldFrame Field = 1 << iota
	FieldFPS
	FieldSize
	FieldTime
	FieldBitrate
	FieldSpeed
)

// Has reports whether all bits of x are set in f.
func (f Field) Has(x Field) bool { return f&x == x }

// Progress is one decoded ffmpeg progress record.
type Progress struct {
	Frame   uint64        // frames written so far
	FPS     float64       // instantaneous frame rate
	Size    int64         // output size in bytes
	Time    time.Duration // encoded media time
	Bitrate float64       // bits per second
	Speed   float64       // encoded time / wall time
	Fields  Field         // which fields were decoded
}

// Merge returns p with every field decoded in next overwritten by next's value.
func (p Progress) Merge(next Progress) Progress {
	if next.Fields.Has(FieldFrame) {
		p.Frame = next.Frame
	}
	if next.Fields.Has(FieldFPS) {
		p.FPS = next.FPS
	}
	if next.Fields.Has(FieldSize) {
		p.Size = next.Size
	}
	if next.Fields.Has(FieldTime) {
		p.Time = next.Time
	}
	if next.Fields.Has(FieldBitrate) {
		p.Bitrate = next.Bitrate
	}
	if next.Fields.Has(FieldSpeed) {
		p.Speed = next.Speed
	}
	p.Fields |= next.Fields
	return p
}

// ParseFieldError reports a progress field whose value could not be decoded.
type ParseFieldError struct {
	Key   string
	Value string
	Err   error
}

func (e *ParseFieldError) Error() string {
	return fmt.Sprintf("progress field %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ParseFieldError) Unwrap() error {
	return e.Err
}

type fieldDecoder struct {
	field  Field
	decode func(p *ProgressParser, out *Progress, value string) error
}

// ProgressParser decodes ffmpeg "key=value" progress lines.
type ProgressParser struct {
	logger       logging.Logger
	decoders     map[string]fieldDecoder
	onFieldError func(*ParseFieldError)
}

// NewProgressParser creates a parser. Failed fields are logged as warnings.
func NewProgressParser(logger logging.Logger) *ProgressParser {
	return &ProgressParser{
		logger: logger,
		decoders: map[string]fieldDecoder{
			"frame":   {FieldFrame, decodeFrame},
			"fps":     {FieldFPS, decodeFPS},
			"size":    {FieldSize, decodeSize},
			"time":    {FieldTime, decodeTime},
			"bitrate": {FieldBitrate, decodeBitrate},
			"speed":   {FieldSpeed, decodeSpeed},
		},
	}
}

// OnFieldError registers a callback invoked for every field that fails to decode.
func (p *ProgressParser) OnFieldError(fn func(*ParseFieldError)) {
	p.onFieldError = fn
}

// Parse decodes one framed progress line. It returns false when the line
// carries none of the recognized keys. Fields that fail to decode are skipped
// and left unset in Progress.Fields.
func (p *ProgressParser) Parse(line string) (Progress, bool) {
	var out Progress
	recognized := false

	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		start := i
		for i < len(line) && !isSpace(line[i]) && line[i] != '=' {
			i++
		}
		if i >= len(line) || line[i] != '=' {
			continue
		}
		key := line[start:i]
		i++

		// ffmpeg pads values: "frame=  100". A padded token that is itself
		// key=value means the value was empty.
		j := i
		for j < len(line) && line[j] == ' ' {
			j++
		}
		end := j
		for end < len(line) && !isSpace(line[end]) {
			end++
		}
		value := ""
		if !strings.Contains(line[j:end], "=") || j == i {
			value = line[j:end]
			i = end
		}

		dec, ok := p.decoders[key]
		if !ok {
			continue
		}
		recognized = true

		if value == "N/A" {
			continue
		}
		if err := dec.decode(p, &out, value); err != nil {
			p.fieldError(&ParseFieldError{Key: key, Value: value, Err: err})
			continue
		}
		out.Fields |= dec.field
	}

	return out, recognized
}

func (p *ProgressParser) fieldError(err *ParseFieldError) {
	if p.logger != nil {
		p.logger.Warn("Skipping malformed progress field", "key", err.Key, "value", err.Value, "error", err.Err)
	}
	if p.onFieldError != nil {
		p.onFieldError(err)
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func decodeFrame(_ *ProgressParser, out *Progress, value string) error {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return err
	}
	out.Frame = n
	return nil
}

func decodeFPS(_ *ProgressParser, out *Progress, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	out.FPS = f
	return nil
}

func decodeSpeed(_ *ProgressParser, out *Progress, value string) error {
	f, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64)
	if err != nil {
		return err
	}
	out.Speed = f
	return nil
}

func decodeSize(_ *ProgressParser, out *Progress, value string) error {
	num, unit := splitNumber(value)
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return err
	}

	var mult float64
	switch strings.ToLower(unit) {
	case "", "b":
		mult = 1
	case "kb", "kib":
		mult = 1 << 10
	case "mb", "mib":
		mult = 1 << 20
	case "gb", "gib":
		mult = 1 << 30
	default:
		return fmt.Errorf("unknown size unit %q", unit)
	}
	out.Size = int64(math.Round(f * mult))
	return nil
}

func decodeBitrate(p *ProgressParser, out *Progress, value string) error {
	num, unit := splitNumber(value)
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return err
	}

	mult := 1.0
	if unit != "" {
		switch unit[0] {
		case 'b', 'B':
		case 'k', 'K':
			mult = 1e3
		case 'm', 'M':
			mult = 1e6
		default:
			// Unknown prefixes count as plain bits per second.
			if p.logger != nil {
				p.logger.Warn("Unknown bitrate unit, assuming bits/s", "value", value)
			}
		}
	}
	out.Bitrate = math.Round(f * mult)
	return nil
}

// decodeTime parses [-]HH:MM:SS[.frac].
func decodeTime(_ *ProgressParser, out *Progress, value string) error {
	neg := false
	s := value
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	hh, rest, ok := strings.Cut(s, ":")
	if !ok {
		return errors.New("expected HH:MM:SS")
	}
	mm, ss, ok := strings.Cut(rest, ":")
	if !ok {
		return errors.New("expected HH:MM:SS")
	}

	h, err := strconv.ParseUint(hh, 10, 32)
	if err != nil {
		return err
	}
	m, err := strconv.ParseUint(mm, 10, 8)
	if err != nil {
		return err
	}
	sec, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return err
	}

	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(math.Round(sec*float64(time.Second)))
	if neg {
		d = -d
	}
	out.Time = d
	return nil
}

// splitNumber splits "128.0kbits/s" into "128.0" and "kbits/s".
func splitNumber(value string) (num, unit string) {
	i := 0
	for i < len(value) {
		c := value[i]
		if (c >= '0' && c <= '9') || c == '.' || (i == 0 && (c == '-' || c == '+')) {
			i++
			continue
		}
		break
	}
	return value[:i], value[i:]
}
