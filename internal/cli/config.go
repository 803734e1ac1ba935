package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with portexec configuration files",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [FILE]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		// Loading is the whole job here, so skip the root pre-run that would
		// fail on the same file before lint can report it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.configPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				dir := ctx.cwd
				if dir == "" {
					wd, err := os.Getwd()
					if err != nil {
						return err
					}
					dir = wd
				}
				path = filepath.Join(dir, config.DefaultPath)
			}

			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return &exitError{code: 1}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", cfg.Path)
			return nil
		},
	}
	return cmd
}
