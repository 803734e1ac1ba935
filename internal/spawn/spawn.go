// Package spawn launches processes after resolving and fixing up their
// command line.
//
// Run blocks until the child exits and returns captured output. Start returns
// immediately with a Handle exposing the child's streams and a single
// lifecycle event. Neither variant asks the OS for shell interpretation; the
// only shell involvement is the command-interpreter wrapping applied to
// batch scripts on the Windows family.
package spawn

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/Paintersrp/portexec/internal/cmdline"
	"github.com/Paintersrp/portexec/internal/env"
	"github.com/Paintersrp/portexec/internal/metrics"
	"github.com/Paintersrp/portexec/internal/resolve"
)

// ErrExecutableNotFound reports that a name did not resolve to an executable.
var ErrExecutableNotFound = errors.New("executable not found")

// StdioMode selects how a child stream is connected.
type StdioMode int

const (
	// StdioPipe connects the stream to the parent: captured by Run, exposed
	// on the Handle by Start.
	StdioPipe StdioMode = iota
	// StdioInherit shares the parent's stream.
	StdioInherit
	// StdioIgnore connects the stream to the null device.
	StdioIgnore
)

// String returns the mode name.
func (m StdioMode) String() string {
	switch m {
	case StdioPipe:
		return "pipe"
	case StdioInherit:
		return "inherit"
	case StdioIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Stdio maps each standard stream of the child.
type Stdio struct {
	Stdin  StdioMode
	Stdout StdioMode
	Stderr StdioMode
}

// Options configures a spawn. The zero value runs in the current directory
// with the ambient environment and piped streams.
type Options struct {
	// Dir, Env, EnvVars, ExtendEnv, Platform and FS feed the resolution
	// context; see resolve.Options.
	Dir       string
	Env       map[string]string
	EnvVars   *env.Env
	ExtendEnv bool
	Platform  resolve.Platform
	FS        resolve.FS

	Stdio Stdio

	// Input is written to the child's stdin by Run. It overrides
	// Stdio.Stdin.
	Input []byte

	// Timeout kills the child started by Run once elapsed.
	Timeout time.Duration

	// MaxBuffer caps each stream captured by Run, in bytes. The child is
	// killed when a stream exceeds it.
	MaxBuffer int64

	// WaitDelay bounds how long Run and Start wait for output pipes held
	// open by descendants after the child exits. Zero means one second.
	WaitDelay time.Duration

	Logger *slog.Logger
}

// ResolveOptions returns the subset of opts that builds the resolution
// context.
func (o Options) ResolveOptions() resolve.Options {
	return resolve.Options{
		Dir:       o.Dir,
		Env:       o.Env,
		EnvVars:   o.EnvVars,
		ExtendEnv: o.ExtendEnv,
		Platform:  o.Platform,
		FS:        o.FS,
	}
}

const defaultWaitDelay = time.Second

func (o Options) waitDelay() time.Duration {
	if o.WaitDelay > 0 {
		return o.WaitDelay
	}
	return defaultWaitDelay
}

// Prepare resolves name and fixes up its command line without starting
// anything. It is the shared front half of Run and Start.
func Prepare(name string, args []string, opts Options) (*resolve.Context, cmdline.CommandLine, error) {
	rctx, err := resolve.BuildContext(opts.ResolveOptions())
	if err != nil {
		return nil, cmdline.CommandLine{}, err
	}
	path, ok := resolve.Resolve(name, rctx)
	if !ok {
		metrics.IncResolveMiss()
		return nil, cmdline.CommandLine{}, fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
	}
	cl, err := cmdline.Fixup(path, args, rctx)
	if err != nil {
		return nil, cmdline.CommandLine{}, err
	}
	if cl.Verbatim {
		metrics.IncShellWrapped()
	}
	return rctx, cl, nil
}

func configureCmd(cmd *exec.Cmd, rctx *resolve.Context, cl cmdline.CommandLine, opts Options) {
	cmd.Dir = rctx.Dir
	cmd.Env = rctx.Env.Slice()
	cmd.WaitDelay = opts.waitDelay()
	configurePlatform(cmd, cl)
}

func logCommand(logger *slog.Logger, msg string, cl cmdline.CommandLine, attrs ...any) {
	attrs = append(attrs, "path", cl.Path, "argc", len(cl.Args), "verbatim", cl.Verbatim)
	logger.Debug(msg, attrs...)
}

// exitStatus extracts the exit code and terminating signal from a finished
// command. A nil state means the process never ran.
func exitStatus(state *os.ProcessState) (int, string) {
	if state == nil {
		return -1, ""
	}
	return state.ExitCode(), exitSignal(state)
}
