package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/cliutil"
	"github.com/Paintersrp/portexec/internal/config"
	"github.com/Paintersrp/portexec/internal/spawn"
)

// Exit code reported when run stops a child for exceeding a limit.
const exitCodeTerminated = 124

func newRunCmd(ctx *context) *cobra.Command {
	var (
		timeout   time.Duration
		maxBuffer string
		input     string
		stdin     bool
	)

	cmd := &cobra.Command{
		Use:   "run NAME [ARGS...]",
		Short: "Run a program to completion and print its captured output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.spawnOptions()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				opts.Timeout = timeout
			}
			if maxBuffer != "" {
				size, err := config.ParseByteSize(maxBuffer)
				if err != nil {
					return fmt.Errorf("--max-buffer: %w", err)
				}
				opts.MaxBuffer = int64(size)
			}
			switch {
			case cmd.Flags().Changed("input"):
				opts.Input = []byte(input)
			case stdin:
				opts.Stdio.Stdin = spawn.StdioInherit
			default:
				opts.Stdio.Stdin = spawn.StdioIgnore
			}

			name, childArgs := args[0], args[1:]
			ctx.log().Debug("running", "name", name, "args", cliutil.RedactArgs(childArgs))

			result, err := spawn.Run(cmd.Context(), name, childArgs, opts)
			if err != nil {
				return err
			}
			_, _ = cmd.OutOrStdout().Write(result.Stdout)
			_, _ = cmd.ErrOrStderr().Write(result.Stderr)
			if result.Err != nil {
				return result.Err
			}

			summary := cliutil.ExitSummary(result.ExitCode, result.Signal, result.Termination, result.Duration)
			ctx.log().Debug("run finished", "path", result.Path, "pid", result.PID, "outcome", summary)
			switch {
			case result.Termination != spawn.TerminationNone:
				fmt.Fprintf(cmd.ErrOrStderr(), "portexec: %s %s\n", name, summary)
				return &exitError{code: exitCodeTerminated}
			case result.Signal != "":
				fmt.Fprintf(cmd.ErrOrStderr(), "portexec: %s %s\n", name, summary)
				return &exitError{code: 1}
			case result.ExitCode != 0:
				return &exitError{code: result.ExitCode}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the program after this duration (overrides the configured timeout)")
	cmd.Flags().StringVar(&maxBuffer, "max-buffer", "", "Kill the program when stdout or stderr exceeds this size, e.g. 512k or 4MiB")
	cmd.Flags().StringVar(&input, "input", "", "Write this text to the program's stdin")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "Connect the program to portexec's stdin")
	return cmd
}
