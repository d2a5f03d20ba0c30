package capture

import (
	"sync"
	"syscall"
	"time"

	"github.com/smazurov/capturenode/internal/ffmpeg"
)

// transitionFunc observes state changes of a handle.
type transitionFunc func(info Info, old State)

// Handle is the registry record of one capture. The Supervisor owns it; the
// worker updates its state when the process ends.
type Handle struct {
	id   ID
	spec Spec

	mu          sync.Mutex
	state       State
	proc        *Process
	pid         int
	exitCode    int
	err         error
	startedAt   time.Time
	endedAt     time.Time
	progress    ffmpeg.Progress
	diagnostics []string
	subs        map[uint64]chan ffmpeg.Progress
	nextSub     uint64

	onTransition transitionFunc
	done         chan struct{} // closed once the worker has returned
}

func newHandle(id ID, spec Spec, onTransition transitionFunc) *Handle {
	return &Handle{
		id:           id,
		spec:         spec,
		state:        StateStarting,
		subs:         make(map[uint64]chan ffmpeg.Progress),
		onTransition: onTransition,
		done:         make(chan struct{}),
	}
}

// ID returns the capture identifier.
func (h *Handle) ID() ID { return h.id }

// Spec returns the spec the capture was created from.
func (h *Handle) Spec() Spec { return h.spec }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the process has been waited on and the worker returned.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Info returns a snapshot of the handle.
func (h *Handle) Info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.infoLocked()
}

func (h *Handle) infoLocked() Info {
	return Info{
		ID:          h.id,
		Spec:        h.spec,
		PID:         h.pid,
		State:       h.state,
		ExitCode:    h.exitCode,
		Err:         h.err,
		StartedAt:   h.startedAt,
		EndedAt:     h.endedAt,
		Progress:    h.progress,
		Diagnostics: h.diagnostics,
	}
}

// setLocked changes state and reports the transition (must hold lock).
func (h *Handle) setLocked(state State) {
	old := h.state
	h.state = state
	if h.onTransition != nil {
		h.onTransition(h.infoLocked(), old)
	}
}

// attach binds a started process and moves the handle to running.
func (h *Handle) attach(proc *Process) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.proc = proc
	h.pid = proc.PID()
	h.startedAt = time.Now()
	h.setLocked(StateRunning)
}

// beginStop moves a live handle to stopping. It returns false once the
// handle is resolved.
func (h *Handle) beginStop() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case StateRunning, StateStarting:
		h.setLocked(StateStopping)
		return true
	case StateStopping:
		return true
	default:
		return false
	}
}

// signal delivers sig unless the process has already been reaped.
func (h *Handle) signal(sig syscall.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Resolved() || h.proc == nil {
		return nil
	}
	return h.proc.Signal(sig)
}

// kill force-kills the process group unless the process has been reaped.
func (h *Handle) kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state.Resolved() || h.proc == nil {
		return nil
	}
	return h.proc.Kill()
}

// stopping reports whether a stop was requested.
func (h *Handle) stopping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state == StateStopping
}

// finish records the terminal state after the process was waited on and
// closes every subscription.
func (h *Handle) finish(state State, exitCode int, err error, diagnostics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.exitCode = exitCode
	h.err = err
	h.diagnostics = diagnostics
	h.endedAt = time.Now()
	h.proc = nil
	h.setLocked(state)

	for key, ch := range h.subs {
		close(ch)
		delete(h.subs, key)
	}
}

// publish stores the latest progress and hands it to every subscriber
// without blocking. It returns how many subscribers were full.
func (h *Handle) publish(p ffmpeg.Progress) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.progress = p
	for _, ch := range h.subs {
		select {
		case ch <- p:
		default:
			dropped++
		}
	}
	return dropped
}

// lastProgress returns the latest merged progress.
func (h *Handle) lastProgress() ffmpeg.Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// subscribe registers a progress channel. The channel is closed when the
// capture ends or cancel is called. A resolved handle yields a closed channel.
func (h *Handle) subscribe(buffer int) (<-chan ffmpeg.Progress, func()) {
	ch := make(chan ffmpeg.Progress, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Resolved() {
		close(ch)
		return ch, func() {}
	}

	key := h.nextSub
	h.nextSub++
	h.subs[key] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[key]; ok {
				close(c)
				delete(h.subs, key)
			}
		})
	}
}
