package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// supportsInteractiveOutput reports whether the command writes to a terminal.
func supportsInteractiveOutput(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
