package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/resolve"
)

func newWhichCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "which NAME...",
		Short: "Print the executable each name resolves to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := ctx.spawnOptions()
			if err != nil {
				return err
			}
			missing := 0
			for _, name := range args {
				path, ok, err := resolve.ResolveFile(name, opts.ResolveOptions())
				if err != nil {
					return err
				}
				if !ok {
					missing++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", name)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			if missing > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	return cmd
}
