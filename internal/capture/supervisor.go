package capture

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/smazurov/capturenode/internal/events"
	"github.com/smazurov/capturenode/internal/ffmpeg"
	"github.com/smazurov/capturenode/internal/logging"
	"github.com/smazurov/capturenode/internal/metrics"
)

// Default timeouts used by Stop and Shutdown.
const (
	DefaultStopTimeout      = 10 * time.Second
	DefaultKillTimeout      = 5 * time.Second
	DefaultSubscriberBuffer = 64
	DefaultDiagnosticLines  = 50
)

// supervisorSeq names supervisors that were not given a Name.
var supervisorSeq atomic.Uint64

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	Name          string // "supervisor" metrics label, unique per process
	Launcher      *Launcher
	Bus           *events.Bus  // optional; lifecycle and progress events
	Logger        *slog.Logger // supervisor logger, default module "capture"
	ProcessLogger *slog.Logger // process output logger, default module "ffmpeg"

	StopSignal       syscall.Signal // default SIGTERM
	StopTimeout      time.Duration  // grace period after StopSignal
	KillTimeout      time.Duration  // wait after SIGKILL before giving up
	MaxLineBytes     int            // progress line bound, default 64KiB
	SubscriberBuffer int            // per-subscription channel capacity
	DiagnosticLines  int            // diagnostic lines kept per capture
}

// Supervisor owns the registry of captures.
type Supervisor struct {
	opts       Options
	logger     *slog.Logger
	procLogger *slog.Logger

	mu      sync.RWMutex
	handles map[ID]*Handle
	order   []ID
	nextID  ID
	closed  bool

	wg sync.WaitGroup // one per worker goroutine
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.Name == "" {
		opts.Name = "supervisor-" + strconv.FormatUint(supervisorSeq.Add(1), 10)
	}
	if opts.Launcher == nil {
		opts.Launcher = &Launcher{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger("capture")
	}
	if opts.ProcessLogger == nil {
		opts.ProcessLogger = logging.GetLogger("ffmpeg")
	}
	if opts.StopSignal == 0 {
		opts.StopSignal = syscall.SIGTERM
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = ffmpeg.DefaultMaxLineBytes
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.DiagnosticLines <= 0 {
		opts.DiagnosticLines = DefaultDiagnosticLines
	}

	return &Supervisor{
		opts:       opts,
		logger:     opts.Logger,
		procLogger: opts.ProcessLogger,
		handles:    make(map[ID]*Handle),
		nextID:     1,
	}
}

// Start launches a capture and returns its identifier. On error no process
// exists and the registry is unchanged.
func (s *Supervisor) Start(spec Spec) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	proc, err := s.opts.Launcher.Launch(spec)
	if err != nil {
		metrics.IncLaunchFailures()
		s.opts.Bus.Publish(events.CaptureLaunchFailedEvent{
			Source:    spec.RedactedSource(),
			Error:     err.Error(),
			Timestamp: time.Now(),
		})
		s.logger.Error("Failed to launch capture", "source", spec.RedactedSource(), "error", err)
		return 0, err
	}

	id := s.nextID
	s.nextID++

	h := newHandle(id, spec, s.transition)
	h.attach(proc)
	s.handles[id] = h
	s.order = append(s.order, id)
	metrics.IncStarted()

	s.logger.Info("Capture started",
		"capture_id", uint64(id),
		"pid", proc.PID(),
		"source", spec.RedactedSource(),
		"destination", spec.Destination)

	w := newWorker(s, h, proc)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(h.done)
		w.run()
	}()

	return id, nil
}

// transition runs with the handle lock held.
func (s *Supervisor) transition(info Info, old State) {
	metrics.SetState(s.series(info.ID), string(info.State))

	errText := ""
	if info.Err != nil {
		errText = info.Err.Error()
	}
	s.opts.Bus.Publish(events.CaptureStateChangedEvent{
		CaptureID: uint64(info.ID),
		Source:    info.Spec.RedactedSource(),
		OldState:  string(old),
		NewState:  string(info.State),
		ExitCode:  info.ExitCode,
		Reason:    errText,
		Timestamp: time.Now(),
	})

	s.logger.Debug("Capture state changed",
		"capture_id", uint64(info.ID),
		"old_state", old,
		"new_state", info.State)
}

func (s *Supervisor) lookup(id ID) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// Get returns a snapshot of one capture.
func (s *Supervisor) Get(id ID) (Info, error) {
	h, err := s.lookup(id)
	if err != nil {
		return Info{}, err
	}
	return h.Info(), nil
}

// List returns snapshots of all captures in creation order.
func (s *Supervisor) List() []Info {
	s.mu.RLock()
	handles := make([]*Handle, 0, len(s.order))
	for _, id := range s.order {
		handles = append(handles, s.handles[id])
	}
	s.mu.RUnlock()

	infos := make([]Info, len(handles))
	for i, h := range handles {
		infos[i] = h.Info()
	}
	return infos
}

// Subscribe returns a channel of merged progress records for one capture, in
// the order the process emitted them. The channel is closed when the capture
// ends or cancel is called. Records are dropped while the channel is full.
func (s *Supervisor) Subscribe(id ID) (<-chan ffmpeg.Progress, func(), error) {
	h, err := s.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := h.subscribe(s.opts.SubscriberBuffer)
	return ch, cancel, nil
}

// Wait blocks until the capture has been waited on or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id ID) (Info, error) {
	h, err := s.lookup(id)
	if err != nil {
		return Info{}, err
	}
	select {
	case <-h.done:
		return h.Info(), nil
	case <-ctx.Done():
		return h.Info(), ctx.Err()
	}
}

// Stop terminates one capture without affecting the others. Stopping a
// capture that already ended returns nil.
func (s *Supervisor) Stop(id ID) error {
	h, err := s.lookup(id)
	if err != nil {
		return err
	}
	if !h.beginStop() {
		return nil
	}
	s.signal(h)
	if timedOut := s.reap([]*Handle{h}); len(timedOut) > 0 {
		return &ShutdownTimeoutError{IDs: timedOut}
	}
	return nil
}

// Discard removes an ended capture from the registry.
func (s *Supervisor) Discard(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return ErrNotFound
	}
	select {
	case <-h.done:
	default:
		return ErrNotResolved
	}

	delete(s.handles, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.Delete(s.series(id))
	return nil
}

// Shutdown stops every live capture in creation order and waits for all of
// them. Captures that survive both timeouts are reported in a
// *ShutdownTimeoutError. After a clean shutdown no worker goroutine remains.
// Later calls return nil.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handles := make([]*Handle, 0, len(s.order))
	for _, id := range s.order {
		handles = append(handles, s.handles[id])
	}
	s.mu.Unlock()

	s.logger.Info("Shutting down captures", "count", len(handles))

	live := handles[:0]
	for _, h := range handles {
		if h.beginStop() {
			s.signal(h)
			live = append(live, h)
		}
	}

	if timedOut := s.reap(live); len(timedOut) > 0 {
		err := &ShutdownTimeoutError{IDs: timedOut}
		s.logger.Error("Shutdown incomplete", "error", err)
		return err
	}

	s.wg.Wait()
	s.logger.Info("All captures stopped")
	return nil
}

func (s *Supervisor) series(id ID) metrics.Capture {
	return metrics.Capture{Supervisor: s.opts.Name, ID: uint64(id)}
}

func (s *Supervisor) signal(h *Handle) {
	if err := h.signal(s.opts.StopSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to signal capture", "capture_id", uint64(h.id), "error", err)
	}
}

// reap waits for the workers of hs. Those still running when StopTimeout
// has passed are killed together, and the ids not waited on within
// KillTimeout after that are returned. Both deadlines are shared by all of hs.
func (s *Supervisor) reap(hs []*Handle) []ID {
	stopDeadline := time.Now().Add(s.opts.StopTimeout)
	var stubborn []*Handle
	for _, h := range hs {
		if !waitDone(h.done, time.Until(stopDeadline)) {
			stubborn = append(stubborn, h)
		}
	}
	if len(stubborn) == 0 {
		return nil
	}

	for _, h := range stubborn {
		s.logger.Warn("Capture ignored stop signal, killing",
			"capture_id", uint64(h.id),
			"timeout", s.opts.StopTimeout)
		if err := h.kill(); err != nil {
			s.logger.Warn("Failed to kill capture", "capture_id", uint64(h.id), "error", err)
		}
	}

	killDeadline := time.Now().Add(s.opts.KillTimeout)
	var timedOut []ID
	for _, h := range stubborn {
		if !waitDone(h.done, time.Until(killDeadline)) {
			s.logger.Error("Capture did not terminate after kill", "capture_id", uint64(h.id))
			timedOut = append(timedOut, h.id)
		}
	}
	return timedOut
}

func waitDone(done <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-done:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
