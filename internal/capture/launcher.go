package capture

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/smazurov/capturenode/internal/ffmpeg"
)

// Launcher starts capture processes.
type Launcher struct {
	// Binary is the executable, resolved through PATH. Defaults to ffmpeg.
	Binary string
	// Args builds the argument list. Defaults to ffmpeg.BuildCaptureArgs.
	Args func(Spec) []string
}

// Process is a started capture process. Ownership passes to the caller,
// which must read Stderr to EOF and then call Wait.
type Process struct {
	cmd    *exec.Cmd
	Stdin  io.WriteCloser // kept open so the process never sees EOF on stdin
	Stdout io.ReadCloser
	Stderr io.ReadCloser // progress protocol
}

// Launch starts the capture process described by spec in its own process
// group. Any failure is returned as a *LaunchError and leaves no process behind.
func (l *Launcher) Launch(spec Spec) (*Process, error) {
	if err := spec.Validate(); err != nil {
		return nil, &LaunchError{Spec: spec, Err: err}
	}

	binary := l.Binary
	if binary == "" {
		binary = ffmpeg.DefaultBinary
	}
	args := l.Args
	if args == nil {
		args = func(s Spec) []string {
			return ffmpeg.BuildCaptureArgs(ffmpeg.CaptureParams{Source: s.Source, Destination: s.Destination})
		}
	}

	cmd := exec.Command(binary, args(spec)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	parent, child, err := stdio(cmd)
	if err != nil {
		return nil, &LaunchError{Spec: spec, Err: err}
	}

	err = cmd.Start()
	closeFiles(child[:]...)
	if err != nil {
		closeFiles(parent[:]...)
		return nil, &LaunchError{Spec: spec, Err: err}
	}

	return &Process{cmd: cmd, Stdin: parent[0], Stdout: parent[1], Stderr: parent[2]}, nil
}

// newPipe is replaced in tests.
var newPipe = os.Pipe

var streamNames = [3]string{"stdin", "stdout", "stderr"}

// stdio attaches a pipe to each standard stream of cmd and returns the
// parent and child ends. On error every descriptor opened so far is closed.
func stdio(cmd *exec.Cmd) (parent, child [3]*os.File, err error) {
	var opened []*os.File
	defer func() {
		if err != nil {
			closeFiles(opened...)
		}
	}()

	for i, name := range streamNames {
		r, w, perr := newPipe()
		if perr != nil {
			return parent, child, fmt.Errorf("%s pipe: %w", name, perr)
		}
		opened = append(opened, r, w)
		if i == 0 {
			child[i], parent[i] = r, w
		} else {
			parent[i], child[i] = r, w
		}
	}

	cmd.Stdin, cmd.Stdout, cmd.Stderr = child[0], child[1], child[2]
	return parent, child, nil
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Signal sends sig to the process and then to its process group.
func (p *Process) Signal(sig syscall.Signal) error {
	if err := p.cmd.Process.Signal(sig); err != nil {
		return err
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// Kill sends SIGKILL to the whole process group.
func (p *Process) Kill() error {
	err := p.Signal(syscall.SIGKILL)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// Wait reaps the process and releases its pipes.
func (p *Process) Wait() error {
	err := p.cmd.Wait()
	for _, c := range []io.Closer{p.Stdin, p.Stdout, p.Stderr} {
		_ = c.Close()
	}
	return err
}

// exitOutcome maps the result of Wait to a terminal state.
// stopping says whether the supervisor asked the process to end.
func exitOutcome(waitErr error, stopping bool) (State, int, error) {
	if waitErr == nil {
		return StateExited, 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return StateFailed, -1, waitErr
	}

	if code := exitErr.ExitCode(); code >= 0 {
		return StateExited, code, nil
	}

	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return StateFailed, -1, waitErr
	}
	if stopping {
		return StateExited, 128 + int(ws.Signal()), nil
	}
	return StateFailed, -1, fmt.Errorf("terminated by signal: %s", ws.Signal())
}
