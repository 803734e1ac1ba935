package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Paintersrp/portexec/internal/cmdline"
	"github.com/Paintersrp/portexec/internal/logging"
	"github.com/Paintersrp/portexec/internal/metrics"
)

// EventType identifies a lifecycle event.
type EventType int

const (
	// EventExit reports that the child exited.
	EventExit EventType = iota
	// EventError reports that the child could not be started.
	EventError
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventExit:
		return "exit"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Exit describes how a child terminated.
type Exit struct {
	// Code is the exit status, or -1 when the child was killed by a signal.
	Code int
	// Signal names the terminating signal, if any.
	Signal string
}

// Event is the single lifecycle notification of a Handle.
type Event struct {
	Type EventType
	Exit Exit
	Err  error
}

// ErrProcessNotStarted is returned when signalling a handle whose process
// never started.
var ErrProcessNotStarted = errors.New("process not started")

// Handle is a running (or failed) child launched by Start. It is safe for
// concurrent use.
type Handle struct {
	// ID correlates log records for this child.
	ID string

	// Path and Args are the command line actually launched.
	Path string
	Args []string

	// Stdin, Stdout and Stderr are set for streams mapped to StdioPipe.
	// Close Stdin to signal end of input.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cl      cmdline.CommandLine
	cmd     *exec.Cmd
	pid     atomic.Int64
	started time.Time
	logger  *slog.Logger

	events chan Event
	done   chan struct{}
	once   sync.Once

	mu    sync.RWMutex
	final Event
}

// Start resolves name and launches it without waiting. Configuration,
// resolution and fixup failures are returned as errors. Once a launch is
// attempted the outcome arrives as exactly one Event: EventError when the OS
// refused to start the child, otherwise EventExit.
func Start(ctx context.Context, name string, args []string, opts Options) (*Handle, error) {
	logger := logging.OrDiscard(opts.Logger)

	rctx, cl, err := Prepare(name, args, opts)
	if err != nil {
		metrics.ObserveSpawn(metrics.ModeAsync, metrics.OutcomeRejected, 0)
		logger.Debug("spawn rejected", "name", name, "error", err)
		return nil, err
	}

	cmd := exec.CommandContext(ctx, cl.Path, cl.Args...)
	configureCmd(cmd, rctx, cl, opts)

	h := &Handle{
		ID:     uuid.NewString(),
		Path:   cl.Path,
		Args:   cl.Args,
		cl:     cl,
		cmd:    cmd,
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}
	h.logger = logger.With("id", h.ID)

	// childEnds are the pipe ends handed to the child; the parent closes its
	// copies once the child holds them.
	var childEnds []*os.File
	closeAll := func() {
		for _, f := range childEnds {
			_ = f.Close()
		}
		h.closeStreams()
	}

	switch opts.Stdio.Stdin {
	case StdioPipe:
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
		cmd.Stdin = r
		h.Stdin = w
		childEnds = append(childEnds, r)
	case StdioInherit:
		cmd.Stdin = os.Stdin
	}

	stdout, stdoutReader, err := outputStream(opts.Stdio.Stdout, os.Stdout, &childEnds)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stdout = stdout
	h.Stdout = stdoutReader

	stderr, stderrReader, err := outputStream(opts.Stdio.Stderr, os.Stderr, &childEnds)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stderr = stderr
	h.Stderr = stderrReader

	h.started = time.Now()
	if err := cmd.Start(); err != nil {
		closeAll()
		metrics.ObserveSpawn(metrics.ModeAsync, metrics.OutcomeStartFailed, 0)
		logCommand(h.logger, "spawn failed", cl, "error", err)
		h.finish(Event{Type: EventError, Exit: Exit{Code: -1}, Err: fmt.Errorf("start %s: %w", cl.Path, err)})
		return h, nil
	}
	for _, f := range childEnds {
		_ = f.Close()
	}
	h.pid.Store(int64(cmd.Process.Pid))
	logCommand(h.logger, "spawned process", cl, "pid", cmd.Process.Pid, "mode", metrics.ModeAsync)

	go h.wait()
	return h, nil
}

// outputStream connects one output stream. For StdioPipe it returns the
// child's write end (recorded in childEnds) and the parent's read end. An
// *os.File is handed to the child directly, so Wait never blocks on the
// parent draining the pipe.
func outputStream(mode StdioMode, inherited *os.File, childEnds *[]*os.File) (io.Writer, io.ReadCloser, error) {
	switch mode {
	case StdioInherit:
		return inherited, nil, nil
	case StdioIgnore:
		return nil, nil, nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	*childEnds = append(*childEnds, w)
	return w, r, nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()
	code, signal := exitStatus(h.cmd.ProcessState)
	ev := Event{Type: EventExit, Exit: Exit{Code: code, Signal: signal}}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		ev.Err = err
	}

	duration := time.Since(h.started)
	metrics.ObserveSpawn(metrics.ModeAsync, metrics.OutcomeExited, duration)
	h.logger.Debug("process exited", "pid", h.PID(), "code", code, "signal", signal, "duration", duration)
	h.finish(ev)
}

// finish publishes the lifecycle event. Only the first call has an effect.
func (h *Handle) finish(ev Event) {
	h.once.Do(func() {
		h.mu.Lock()
		h.final = ev
		h.mu.Unlock()
		h.events <- ev
		close(h.events)
		close(h.done)
	})
}

func (h *Handle) closeStreams() {
	if h.Stdin != nil {
		_ = h.Stdin.Close()
	}
	if h.Stdout != nil {
		_ = h.Stdout.Close()
	}
	if h.Stderr != nil {
		_ = h.Stderr.Close()
	}
}

// PID returns the process id, or 0 when the child never started.
func (h *Handle) PID() int {
	return int(h.pid.Load())
}

// Events delivers exactly one lifecycle Event and is then closed.
func (h *Handle) Events() <-chan Event {
	return h.events
}

// Done is closed once the lifecycle Event has been published.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the child exits or fails to start. The error is the
// start failure, or a wait failure other than a non-zero exit.
func (h *Handle) Wait() (Exit, error) {
	<-h.done
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.final.Exit, h.final.Err
}

// Signal sends sig to the child.
func (h *Handle) Signal(sig os.Signal) error {
	if h.PID() == 0 || h.cmd.Process == nil {
		return ErrProcessNotStarted
	}
	select {
	case <-h.done:
		return os.ErrProcessDone
	default:
	}
	return h.cmd.Process.Signal(sig)
}

// Stop asks the child to exit and kills it once grace elapses. It returns
// after the lifecycle event is published or ctx ends.
func (h *Handle) Stop(ctx context.Context, grace time.Duration) error {
	err := h.Signal(terminateSignal)
	switch {
	case errors.Is(err, os.ErrProcessDone):
		return nil
	case errors.Is(err, ErrProcessNotStarted):
		return err
	case err == nil:
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-h.done:
			return nil
		case <-timer.C:
			h.logger.Debug("grace period elapsed, killing", "pid", h.PID(), "grace", grace)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := h.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", h.Path, err)
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill forcibly terminates the child.
func (h *Handle) Kill() error {
	return h.Signal(os.Kill)
}

// CommandLine returns the command line the handle launched.
func (h *Handle) CommandLine() cmdline.CommandLine {
	return h.cl
}
