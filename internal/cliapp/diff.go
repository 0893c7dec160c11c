package cliapp

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sauravvenkat/forkline/internal/divergence"
	"github.com/sauravvenkat/forkline/internal/eventstore"
)

// DiffOptions holds the flags accepted by `forkline diff` (spec §6).
type DiffOptions struct {
	Window int
	Show   string
	Canon  string
}

// ValidShow lists the accepted --show values.
var ValidShow = []string{"input", "output", "both"}

func isValidShow(show string) bool {
	for _, s := range ValidShow {
		if s == show {
			return true
		}
	}
	return false
}

// ValidCanon lists the accepted --canon values. Only "strict" is
// implemented today; the flag is reserved for a future non-strict
// profile (SPEC_FULL.md §4).
var ValidCanon = []string{"strict"}

func isValidCanon(canon string) bool {
	for _, c := range ValidCanon {
		if c == canon {
			return true
		}
	}
	return false
}

// NewDiffCommand builds the `forkline diff <run_a> <run_b>` subcommand.
func NewDiffCommand(root *RootOptions) *cobra.Command {
	opts := &DiffOptions{}

	cmd := &cobra.Command{
		Use:   "diff <run_a> <run_b>",
		Short: "Find the first point of divergence between two recorded runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isValidShow(opts.Show) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --show %q: must be one of %v", opts.Show, ValidShow))
			}
			if !isValidCanon(opts.Canon) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid --canon %q: must be one of %v", opts.Canon, ValidCanon))
			}

			store, err := eventstore.Open(root.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			defer store.Close()

			runA, ok, err := store.LoadRun(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load run_a", err)
			}
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found in %s", args[0], root.DBPath))
			}

			runB, ok, err := store.LoadRun(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "load run_b", err)
			}
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("run %q not found in %s", args[1], root.DBPath))
			}

			result, err := divergence.FindFirstDivergence(runA, runB, divergence.Options{
				Window: opts.Window,
				Show:   divergence.Show(opts.Show),
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "compute divergence", err)
			}

			formatter := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: root.Verbose}
			if root.Format == "json" {
				if err := formatter.PrintJSON(result.ToDoc()); err != nil {
					return WrapExitError(ExitCommandError, "write output", err)
				}
			} else {
				if err := formatter.PrintText(FormatDiffText(result)); err != nil {
					return WrapExitError(ExitCommandError, "write output", err)
				}
			}

			if result.Status != divergence.ExactMatch {
				return NewExitError(ExitFailure, fmt.Sprintf("runs diverge: %s", result.Status))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.Window, "window", 10, "resync window size")
	cmd.Flags().StringVar(&opts.Show, "show", "both", "which diffs to show (input|output|both)")
	cmd.Flags().StringVar(&opts.Canon, "canon", "strict", "canonicalization profile")

	return cmd
}
