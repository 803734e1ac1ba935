package spawn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/Paintersrp/portexec/internal/logging"
	"github.com/Paintersrp/portexec/internal/metrics"
)

// Termination explains why Run stopped a child.
type Termination int

const (
	// TerminationNone means the child exited on its own.
	TerminationNone Termination = iota
	// TerminationTimeout means Options.Timeout elapsed.
	TerminationTimeout
	// TerminationMaxBuffer means a captured stream exceeded
	// Options.MaxBuffer.
	TerminationMaxBuffer
)

// String returns the termination reason.
func (t Termination) String() string {
	switch t {
	case TerminationNone:
		return "none"
	case TerminationTimeout:
		return "timeout"
	case TerminationMaxBuffer:
		return "max_buffer"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Result is the outcome of Run.
type Result struct {
	// Path and Args are the command line actually launched.
	Path string
	Args []string

	PID int

	// ExitCode is -1 when the child was killed or never started.
	ExitCode int
	// Signal names the signal that terminated the child, if any.
	Signal string

	Stdout []byte
	Stderr []byte

	// Err is set when the OS could not start the child or waiting on it
	// failed for reasons other than a non-zero exit.
	Err error

	Termination Termination
	Duration    time.Duration
}

// Success reports whether the child started and exited with status zero.
func (r *Result) Success() bool {
	return r.Err == nil && r.Termination == TerminationNone && r.ExitCode == 0
}

var (
	errTimeout   = errors.New("timeout exceeded")
	errMaxBuffer = errors.New("output size limit exceeded")
)

// Run resolves name, launches it and waits for it to exit. Configuration,
// resolution and fixup failures are returned as errors; everything that
// happens once a launch was attempted is reported in the Result.
func Run(ctx context.Context, name string, args []string, opts Options) (*Result, error) {
	logger := logging.OrDiscard(opts.Logger)

	rctx, cl, err := Prepare(name, args, opts)
	if err != nil {
		metrics.ObserveSpawn(metrics.ModeBlocking, metrics.OutcomeRejected, 0)
		logger.Debug("spawn rejected", "name", name, "error", err)
		return nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if opts.Timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(runCtx, opts.Timeout, errTimeout)
		defer stop()
	}

	cmd := exec.CommandContext(runCtx, cl.Path, cl.Args...)
	configureCmd(cmd, rctx, cl, opts)

	overflow := func() { cancel(errMaxBuffer) }
	stdout := &cappedBuffer{limit: opts.MaxBuffer, onExceed: overflow}
	stderr := &cappedBuffer{limit: opts.MaxBuffer, onExceed: overflow}

	switch {
	case opts.Input != nil:
		cmd.Stdin = bytes.NewReader(opts.Input)
	case opts.Stdio.Stdin == StdioInherit:
		cmd.Stdin = os.Stdin
	}
	cmd.Stdout = captureTarget(opts.Stdio.Stdout, stdout, os.Stdout)
	cmd.Stderr = captureTarget(opts.Stdio.Stderr, stderr, os.Stderr)

	result := &Result{Path: cl.Path, Args: cl.Args}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		result.ExitCode = -1
		result.Err = fmt.Errorf("start %s: %w", cl.Path, err)
		metrics.ObserveSpawn(metrics.ModeBlocking, metrics.OutcomeStartFailed, 0)
		logCommand(logger, "spawn failed", cl, "error", err)
		return result, nil
	}
	result.PID = cmd.Process.Pid
	logCommand(logger, "spawned process", cl, "pid", result.PID, "mode", metrics.ModeBlocking)

	waitErr := cmd.Wait()
	result.Duration = time.Since(started)
	result.ExitCode, result.Signal = exitStatus(cmd.ProcessState)
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()

	outcome := metrics.OutcomeExited
	cause := context.Cause(runCtx)
	switch {
	case errors.Is(cause, errMaxBuffer):
		result.Termination = TerminationMaxBuffer
		outcome = metrics.OutcomeMaxBuffer
	case errors.Is(cause, errTimeout):
		result.Termination = TerminationTimeout
		outcome = metrics.OutcomeTimeout
	case cause != nil:
		// The caller's context ended.
		result.Err = cause
	case waitErr != nil:
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
			result.Err = waitErr
		}
	}

	metrics.ObserveSpawn(metrics.ModeBlocking, outcome, result.Duration)
	logger.Debug("process exited",
		"pid", result.PID,
		"code", result.ExitCode,
		"signal", result.Signal,
		"termination", result.Termination.String(),
		"duration", result.Duration,
	)
	return result, nil
}

func captureTarget(mode StdioMode, capture io.Writer, inherited *os.File) io.Writer {
	switch mode {
	case StdioInherit:
		return inherited
	case StdioIgnore:
		return nil
	default:
		return capture
	}
}

// cappedBuffer accumulates output up to limit bytes. Past the limit it
// discards input, still reporting success so the copying goroutine keeps
// draining the pipe until the child is killed, and fires onExceed once.
type cappedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
	onExceed func()
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.limit > 0 {
		room := b.limit - int64(b.buf.Len())
		if int64(len(p)) > room {
			if room > 0 {
				b.buf.Write(p[:room])
			}
			if !b.exceeded {
				b.exceeded = true
				if b.onExceed != nil {
					b.onExceed()
				}
			}
			return len(p), nil
		}
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
