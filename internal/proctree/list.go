package proctree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Paintersrp/portexec/internal/logging"
	"github.com/Paintersrp/portexec/internal/metrics"
	"github.com/Paintersrp/portexec/internal/resolve"
	"github.com/Paintersrp/portexec/internal/spawn"
)

// ErrListingFailed reports that the listing tool could not be started or
// exited unsuccessfully.
var ErrListingFailed = errors.New("process listing failed")

const sourceTool = "tool"

// Command is a listing tool invocation.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ListingCommand returns the listing tool for a platform family. Both print a
// header line and then name, parent id and id per process.
func ListingCommand(platform resolve.Platform) Command {
	if platform.IsWindows() {
		return Command{Name: "wmic", Args: []string{"process", "get", "Name,ParentProcessId,ProcessId"}}
	}
	return Command{Name: "ps", Args: []string{"-A", "-o", "comm,ppid,pid"}}
}

// Lister runs the listing tool and builds the forest from its output.
type Lister struct {
	// Platform selects the listing tool. Zero means the host.
	Platform resolve.Platform
	// Command overrides the listing tool.
	Command *Command
	// Spawn is passed to every tool invocation. Its Stdio is overridden.
	Spawn  spawn.Options
	Logger *slog.Logger
}

// Result is delivered by the non-blocking listing variants.
type Result struct {
	Processes map[int]*ProcessInfo
	Names     ByName
	Err       error
}

func (l *Lister) command() Command {
	if l.Command != nil {
		return *l.Command
	}
	return ListingCommand(l.Platform)
}

func (l *Lister) spawnOptions() spawn.Options {
	opts := l.Spawn
	if opts.Platform == resolve.PlatformHost {
		opts.Platform = l.Platform
	}
	if opts.Logger == nil {
		opts.Logger = l.Logger
	}
	opts.Stdio = spawn.Stdio{Stdin: spawn.StdioIgnore, Stdout: spawn.StdioPipe, Stderr: spawn.StdioPipe}
	return opts
}

// ListByID blocks until the tool exits and returns every process keyed by id.
func (l *Lister) ListByID(ctx context.Context) (map[int]*ProcessInfo, error) {
	b, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return b.Map(), nil
}

// ListByName blocks until the tool exits and returns processes grouped by
// name.
func (l *Lister) ListByName(ctx context.Context) (ByName, error) {
	b, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return b.ByName(), nil
}

// List blocks until the tool exits and returns the populated Builder.
func (l *Lister) List(ctx context.Context) (*Builder, error) {
	cmd := l.command()
	started := time.Now()
	result, err := spawn.Run(ctx, cmd.Name, cmd.Args, l.spawnOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrListingFailed, cmd.Name, err)
	}
	if err := toolFailure(cmd, result.Err, result.ExitCode, result.Stderr); err != nil {
		return nil, err
	}
	b, err := Parse(bytes.NewReader(result.Stdout))
	if err != nil {
		return nil, err
	}
	l.observe(cmd, b, time.Since(started))
	return b, nil
}

// StartListByID starts the tool and returns immediately. The channel
// receives exactly one Result and is then closed.
func (l *Lister) StartListByID(ctx context.Context) <-chan Result {
	return l.start(ctx, false)
}

// StartListByName is StartListByID with results grouped by name.
func (l *Lister) StartListByName(ctx context.Context) <-chan Result {
	return l.start(ctx, true)
}

func (l *Lister) start(ctx context.Context, byName bool) <-chan Result {
	out := make(chan Result, 1)
	deliver := func(b *Builder, err error) {
		if err != nil {
			out <- Result{Err: err}
		} else if byName {
			out <- Result{Names: b.ByName()}
		} else {
			out <- Result{Processes: b.Map()}
		}
		close(out)
	}

	cmd := l.command()
	started := time.Now()
	h, err := spawn.Start(ctx, cmd.Name, cmd.Args, l.spawnOptions())
	if err != nil {
		deliver(nil, fmt.Errorf("%w: %s: %w", ErrListingFailed, cmd.Name, err))
		return out
	}

	go func() {
		type parsed struct {
			b   *Builder
			err error
		}
		parsedCh := make(chan parsed, 1)
		stderrCh := make(chan []byte, 1)
		if h.Stdout != nil {
			go func() {
				b, err := Parse(h.Stdout)
				_, _ = io.Copy(io.Discard, h.Stdout)
				_ = h.Stdout.Close()
				parsedCh <- parsed{b: b, err: err}
			}()
		} else {
			parsedCh <- parsed{b: NewBuilder()}
		}
		if h.Stderr != nil {
			go func() {
				data, _ := io.ReadAll(h.Stderr)
				_ = h.Stderr.Close()
				stderrCh <- data
			}()
		} else {
			stderrCh <- nil
		}

		exit, waitErr := h.Wait()
		p := <-parsedCh
		stderr := <-stderrCh

		if err := toolFailure(cmd, waitErr, exit.Code, stderr); err != nil {
			deliver(nil, err)
			return
		}
		if p.err != nil {
			deliver(nil, p.err)
			return
		}
		l.observe(cmd, p.b, time.Since(started))
		deliver(p.b, nil)
	}()
	return out
}

func toolFailure(cmd Command, startErr error, code int, stderr []byte) error {
	if startErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrListingFailed, cmd.Name, startErr)
	}
	if code == 0 {
		return nil
	}
	msg := fmt.Sprintf("%s exited with code %d", cmd.Name, code)
	if detail := strings.TrimSpace(string(stderr)); detail != "" {
		msg += ": " + detail
	}
	return fmt.Errorf("%w: %s", ErrListingFailed, msg)
}

func (l *Lister) observe(cmd Command, b *Builder, d time.Duration) {
	metrics.ObserveListing(sourceTool, len(b.Map()), d)
	logging.OrDiscard(l.Logger).Debug("listed processes", "tool", cmd.String(), "processes", len(b.Map()), "duration", d)
}
