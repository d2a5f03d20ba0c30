package capture

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/capturenode/internal/events"
	"github.com/smazurov/capturenode/internal/ffmpeg"
	"github.com/smazurov/capturenode/internal/metrics"
)

// diagnosticTail is how many diagnostic lines are attached to an unclean exit.
const diagnosticTail = 10

// worker owns the read side of one capture: it frames and parses the
// progress stream, forwards records, and reaps the process at end of stream.
type worker struct {
	handle     *Handle
	proc       *Process
	parser     *ffmpeg.ProgressParser
	framer     *ffmpeg.Framer
	ring       *ffmpeg.LineRing
	logger     *slog.Logger
	procLogger *slog.Logger
	bus        *events.Bus
	series     metrics.Capture
}

func newWorker(s *Supervisor, h *Handle, proc *Process) *worker {
	logger := s.logger.With("capture_id", uint64(h.id), "pid", proc.PID())

	w := &worker{
		handle:     h,
		proc:       proc,
		parser:     ffmpeg.NewProgressParser(logger),
		ring:       ffmpeg.NewLineRing(s.opts.DiagnosticLines),
		logger:     logger,
		procLogger: s.procLogger.With("capture_id", uint64(h.id)),
		bus:        s.opts.Bus,
		series:     s.series(h.id),
	}
	w.parser.OnFieldError(func(err *ffmpeg.ParseFieldError) {
		metrics.IncFieldErrors(err.Key)
	})
	w.framer = ffmpeg.NewFramer(s.opts.MaxLineBytes, w.handleRecord, w.handleDiagnostic)
	return w
}

// run blocks until the process has been waited on.
func (w *worker) run() {
	stdoutDone := make(chan struct{})
	go func() {
		defer close(stdoutDone)
		w.drain(w.proc.Stdout)
	}()

	streamErr := w.readProgress()
	if streamErr != nil {
		w.logger.Error("Progress stream failed, killing capture", "error", streamErr)
		if err := w.proc.Kill(); err != nil {
			w.logger.Warn("Failed to kill capture", "error", err)
		}
		// Unblock a process stuck writing to a full stderr pipe.
		_, _ = io.Copy(io.Discard, w.proc.Stderr)
	}

	<-stdoutDone
	waitErr := w.proc.Wait()

	state, code, err := exitOutcome(waitErr, w.handle.stopping())
	if streamErr != nil {
		state, code, err = StateFailed, -1, &StreamError{ID: w.handle.id, Err: streamErr}
	}

	var tail []string
	if state == StateFailed || code != 0 {
		tail = w.ring.LastN(diagnosticTail)
	}

	switch {
	case state == StateFailed:
		w.logger.Error("Capture failed", "error", err, "diagnostics", tail)
	case code != 0:
		w.logger.Warn("Capture exited", "exit_code", code, "diagnostics", tail)
	default:
		w.logger.Info("Capture exited", "exit_code", code)
	}

	w.handle.finish(state, code, err, tail)
}

// readProgress copies stderr through the framer until EOF.
func (w *worker) readProgress() error {
	_, err := io.Copy(w.framer, w.proc.Stderr)
	if err == nil || errors.Is(err, os.ErrClosed) {
		w.framer.Flush()
		return nil
	}
	if errors.Is(err, ffmpeg.ErrLineTooLong) {
		return err
	}
	// Read errors other than EOF end the stream the same way.
	w.logger.Warn("Error reading progress stream", "error", err)
	w.framer.Flush()
	return nil
}

func (w *worker) handleRecord(line []byte) {
	next, ok := w.parser.Parse(string(line))
	if !ok {
		return
	}

	prev := w.handle.lastProgress()
	if next.Fields.Has(ffmpeg.FieldFrame) && next.Frame < prev.Frame {
		w.logger.Debug("Ignoring decreasing frame count", "frame", next.Frame, "previous", prev.Frame)
		next.Fields &^= ffmpeg.FieldFrame
	}
	merged := prev.Merge(next)

	if dropped := w.handle.publish(merged); dropped > 0 {
		for range dropped {
			metrics.IncProgressDropped(w.series)
		}
	}

	metrics.SetProgress(w.series, metrics.Progress{
		Frames:         merged.Frame,
		FPS:            merged.FPS,
		Bitrate:        merged.Bitrate,
		Speed:          merged.Speed,
		OutputBytes:    merged.Size,
		EncodedSeconds: merged.Time.Seconds(),
	})

	w.bus.Publish(events.CaptureProgressEvent{
		CaptureID:   uint64(w.handle.id),
		Frame:       merged.Frame,
		FPS:         merged.FPS,
		OutputBytes: merged.Size,
		Encoded:     merged.Time,
		Bitrate:     merged.Bitrate,
		Speed:       merged.Speed,
		Timestamp:   time.Now(),
	})
}

func (w *worker) handleDiagnostic(line []byte) {
	text := string(line)
	w.ring.Add(text)
	level, msg := ffmpeg.ParseLogLevel(text)
	w.procLogger.Log(context.Background(), level, msg, "source", "stderr")
}

// drain logs stdout so the process never blocks on a full pipe.
func (w *worker) drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		w.procLogger.Debug(scanner.Text(), "source", "stdout")
	}
	if err := scanner.Err(); err != nil {
		w.logger.Debug("Stopped reading stdout", "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
