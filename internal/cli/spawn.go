package cli

import (
	stdcontext "context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/cliutil"
	"github.com/Paintersrp/portexec/internal/spawn"
)

func newSpawnCmd(ctx *context) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "spawn NAME [ARGS...]",
		Short: "Start a program with inherited stdio and report its lifecycle",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.spawnOptions()
			if err != nil {
				return err
			}
			opts.Timeout = 0
			opts.MaxBuffer = 0
			opts.Stdio = spawn.Stdio{Stdin: spawn.StdioInherit, Stdout: spawn.StdioInherit, Stderr: spawn.StdioInherit}

			name, childArgs := args[0], args[1:]
			// The child outlives cancellation of the command context so Stop
			// can give it a chance to exit cleanly.
			h, err := spawn.Start(stdcontext.WithoutCancel(cmd.Context()), name, childArgs, opts)
			if err != nil {
				return err
			}
			logger := ctx.log().With("id", h.ID)
			logger.Info("started", "name", name, "path", h.Path, "pid", h.PID(), "args", cliutil.RedactArgs(childArgs))
			if cl := h.CommandLine(); cl.Verbatim {
				logger.Debug("wrapped in command interpreter", "interpreter", cl.Path, "script", cl.Args[len(cl.Args)-len(childArgs)-1])
			}

			go func() {
				select {
				case <-cmd.Context().Done():
					logger.Info("stopping", "pid", h.PID(), "grace", grace)
					if err := h.Stop(stdcontext.Background(), grace); err != nil {
						logger.Warn("stop failed", "error", err)
					}
				case <-h.Done():
				}
			}()

			ev := <-h.Events()
			switch ev.Type {
			case spawn.EventError:
				return ev.Err
			default:
				logger.Info("exited", "code", ev.Exit.Code, "signal", ev.Exit.Signal)
				if ev.Err != nil {
					return ev.Err
				}
				if ev.Exit.Signal != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "portexec: %s %s\n", name, cliutil.ExitSummary(ev.Exit.Code, ev.Exit.Signal, spawn.TerminationNone, 0))
					return &exitError{code: 1}
				}
				if ev.Exit.Code != 0 {
					return &exitError{code: ev.Exit.Code}
				}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().DurationVar(&grace, "grace", 2*time.Second, "Time to wait after asking the program to stop before killing it")
	return cmd
}
