// Package metrics provides Prometheus metrics for supervised captures.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "capturenode"
	subsystem = "capture"
)

// Per-capture series are keyed by supervisor and capture_id, since every
// supervisor numbers its captures from 1.
var captureLabels = []string{"supervisor", "capture_id"}

// States reported by the state gauge, one series per state name.
var States = []string{"starting", "running", "stopping", "exited", "failed"}

var (
	captureFrames = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames",
		Help:      "Frames written by the capture process",
	}, captureLabels)

	captureFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "fps",
		Help:      "Current capture frame rate",
	}, captureLabels)

	captureBitrate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bitrate_bits_per_second",
		Help:      "Current output bit rate",
	}, captureLabels)

	captureSpeed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "speed",
		Help:      "Encoded time relative to wall time",
	}, captureLabels)

	captureOutputBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "output_bytes",
		Help:      "Size of the capture artifact written so far",
	}, captureLabels)

	captureEncodedSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "encoded_seconds",
		Help:      "Media time written so far",
	}, captureLabels)

	captureState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "state",
		Help:      "1 for the current lifecycle state of a capture",
	}, append(captureLabels, "state"))

	capturesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "started_total",
		Help:      "Capture processes started",
	})

	launchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "launch_failures_total",
		Help:      "Capture processes that failed to start",
	})

	fieldErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "field_errors_total",
		Help:      "Progress fields that failed to decode",
	}, []string{"field"})

	progressDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "progress_dropped_total",
		Help:      "Progress records dropped because a subscriber was full",
	}, captureLabels)
)

// Progress is the subset of a progress record exported as metrics.
type Progress struct {
	Frames         uint64
	FPS            float64
	Bitrate        float64
	Speed          float64
	OutputBytes    int64
	EncodedSeconds float64
}

// Capture identifies the series of one capture.
type Capture struct {
	Supervisor string
	ID         uint64
}

func (c Capture) labels() []string {
	return []string{c.Supervisor, strconv.FormatUint(c.ID, 10)}
}

// SetProgress records the latest progress of a capture.
func SetProgress(c Capture, p Progress) {
	l := c.labels()
	captureFrames.WithLabelValues(l...).Set(float64(p.Frames))
	captureFPS.WithLabelValues(l...).Set(p.FPS)
	captureBitrate.WithLabelValues(l...).Set(p.Bitrate)
	captureSpeed.WithLabelValues(l...).Set(p.Speed)
	captureOutputBytes.WithLabelValues(l...).Set(float64(p.OutputBytes))
	captureEncodedSeconds.WithLabelValues(l...).Set(p.EncodedSeconds)
}

// SetState marks state as the current lifecycle state of a capture.
func SetState(c Capture, state string) {
	l := c.labels()
	for _, s := range States {
		v := 0.0
		if s == state {
			v = 1
		}
		captureState.WithLabelValues(append(l, s)...).Set(v)
	}
}

// IncStarted counts a started capture process.
func IncStarted() { capturesStarted.Inc() }

// IncLaunchFailures counts a capture process that failed to start.
func IncLaunchFailures() { launchFailures.Inc() }

// IncFieldErrors counts a progress field that failed to decode.
func IncFieldErrors(field string) { fieldErrors.WithLabelValues(field).Inc() }

// IncProgressDropped counts a progress record dropped for a slow subscriber.
func IncProgressDropped(c Capture) { progressDropped.WithLabelValues(c.labels()...).Inc() }

// Delete removes every series of a discarded capture.
func Delete(c Capture) {
	l := c.labels()
	captureFrames.DeleteLabelValues(l...)
	captureFPS.DeleteLabelValues(l...)
	captureBitrate.DeleteLabelValues(l...)
	captureSpeed.DeleteLabelValues(l...)
	captureOutputBytes.DeleteLabelValues(l...)
	captureEncodedSeconds.DeleteLabelValues(l...)
	progressDropped.DeleteLabelValues(l...)
	for _, s := range States {
		captureState.DeleteLabelValues(append(l, s)...)
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
