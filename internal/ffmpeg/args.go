package ffmpeg

// DefaultBinary is the ffmpeg executable name resolved through PATH.
const DefaultBinary = "ffmpeg"

// CaptureParams describes one stream-copy capture run.
type CaptureParams struct {
	Source      string // input URI, usually rtsp://
	Destination string // output path or sink
	Transport   string // -rtsp_transport value, defaults to tcp
	Format      string // output container, defaults to mpegts
	VideoCodec  string // defaults to copy (no re-encoding)
}

// BuildCaptureArgs returns the ffmpeg argument list for a capture.
// Source and destination are always the last input and output positional arguments.
func BuildCaptureArgs(p CaptureParams) []string {
	transport := p.Transport
	if transport == "" {
		transport = "tcp"
	}
	format := p.Format
	if format == "" {
		format = "mpegts"
	}
	codec := p.VideoCodec
	if codec == "" {
		codec = "copy"
	}

	return []string{
		"-y", // overwrite destination
		"-rtsp_transport", transport,
		"-i", p.Source,
		"-c:v", codec,
		"-f", format,
		p.Destination,
	}
}
