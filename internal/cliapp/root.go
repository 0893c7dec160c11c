package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the `forkline` root command and wires its
// subcommands.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "forkline",
		Short:         "Forkline: replay-first tracing and diffing for agentic workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "forkline.db", "path to SQLite event store")

	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}
