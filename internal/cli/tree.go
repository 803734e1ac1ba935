package cli

import (
	stdcontext "context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/cliutil"
	"github.com/Paintersrp/portexec/internal/proctree"
	"github.com/Paintersrp/portexec/internal/tui"
)

func newTreeCmd(ctx *context) *cobra.Command {
	var (
		native      bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the process forest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				if !supportsInteractiveOutput(cmd) {
					return fmt.Errorf("tree -i requires an interactive terminal")
				}
				source, err := ctx.treeSource(native)
				if err != nil {
					return err
				}
				return tui.New(source).Run(cmd.Context())
			}

			b, err := ctx.listProcesses(cmd, native)
			if err != nil {
				return err
			}
			return cliutil.WriteTree(cmd.OutOrStdout(), proctree.Roots(b.Map()))
		},
	}
	cmd.Flags().BoolVar(&native, "native", false, "Read the OS process table instead of running the listing tool")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse the forest in an interactive view")
	return cmd
}

// treeSource feeds the interactive view. Tool listings run asynchronously so
// a slow tool never blocks the view.
func (c *context) treeSource(native bool) (tui.Source, error) {
	if native {
		return func(stdcontext.Context) (map[int]*proctree.ProcessInfo, error) {
			b, err := proctree.ListNative()
			if err != nil {
				return nil, err
			}
			return b.Map(), nil
		}, nil
	}
	l, err := c.lister()
	if err != nil {
		return nil, err
	}
	return func(ctx stdcontext.Context) (map[int]*proctree.ProcessInfo, error) {
		select {
		case res := <-l.StartListByID(ctx):
			return res.Processes, res.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, nil
}
