package cli

import (
	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/cliutil"
	"github.com/Paintersrp/portexec/internal/proctree"
)

func newPsCmd(ctx *context) *cobra.Command {
	var (
		byName bool
		native bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List processes with their parent links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ctx.listProcesses(cmd, native)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case byName && asJSON:
				return cliutil.EncodeJSON(out, cliutil.NameRecords(b.ByName()))
			case byName:
				return cliutil.WriteNameTable(out, b.ByName())
			case asJSON:
				return cliutil.EncodeJSON(out, cliutil.ProcessRecords(b.Map()))
			default:
				return cliutil.WriteProcessTable(out, cliutil.ProcessRecords(b.Map()))
			}
		},
	}
	cmd.Flags().BoolVar(&byName, "by-name", false, "Group processes by name")
	cmd.Flags().BoolVar(&native, "native", false, "Read the OS process table instead of running the listing tool")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

// listProcesses returns the forest from the listing tool or, with native,
// from the OS process table.
func (c *context) listProcesses(cmd *cobra.Command, native bool) (*proctree.Builder, error) {
	if native {
		return proctree.ListNative()
	}
	l, err := c.lister()
	if err != nil {
		return nil, err
	}
	return l.List(cmd.Context())
}
