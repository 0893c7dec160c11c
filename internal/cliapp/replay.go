package cliapp

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sauravvenkat/forkline/internal/eventstore"
	"github.com/sauravvenkat/forkline/internal/replay"
	"github.com/sauravvenkat/forkline/internal/trace"
)

// ReplayOptions holds the flags accepted by `forkline replay` (a
// supplemented command: spec.md's CLI surface lists only `diff`, but
// C7 — 15% of the component budget — otherwise has no command-line
// entry point at all).
type ReplayOptions struct {
	FailOnMissingArtifact bool
	Against               string
}

// NewReplayCommand builds the `forkline replay <run_id>` subcommand.
// With no --against run given, it runs the presence-only artifact
// check (spec §4.6's "with no executor" path). With --against, the
// named run's recorded steps stand in for a live executor, so the
// original recording is replayed against that second run's artifacts
// via compare.CompareStep.
func NewReplayCommand(root *RootOptions) *cobra.Command {
	opts := &ReplayOptions{}

	cmd := &cobra.Command{
		Use:   "replay <run_id>",
		Short: "Replay a recorded run's artifact presence checks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := eventstore.Open(root.DBPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			defer store.Close()

			run, ok, err := store.LoadRun(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "load run", err)
			}
			if !ok {
				return emitReplayResult(cmd, root, replay.Result{
					Status:  replay.OriginalNotFound,
					RunID:   args[0],
					Message: fmt.Sprintf("original_not_found: run=%s not found in %s", args[0], root.DBPath),
				})
			}

			var executor replay.Executor
			if opts.Against != "" {
				againstRun, ok, err := store.LoadRun(opts.Against)
				if err != nil {
					return WrapExitError(ExitCommandError, "load --against run", err)
				}
				if !ok {
					return emitReplayResult(cmd, root, replay.Result{
						Status:  replay.ReplayNotFound,
						RunID:   opts.Against,
						Message: fmt.Sprintf("replay_not_found: run=%s not found in %s", opts.Against, root.DBPath),
					})
				}
				executor = executorFromRun(againstRun)
			}

			result := replay.Run(context.Background(), run, replay.Policy{FailOnMissingArtifact: opts.FailOnMissingArtifact}, executor)
			return emitReplayResult(cmd, root, result)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnMissingArtifact, "fail-on-missing-artifact", false, "fail replay if a step is missing a required artifact")
	cmd.Flags().StringVar(&opts.Against, "against", "", "run id whose recorded steps stand in for a live executor")

	return cmd
}

// executorFromRun builds a replay.Executor backed by a second recorded
// run's steps, keyed by step index. A recorded step with no
// corresponding index in replayRun signals ErrReplayExhausted: the
// stand-in run ran out of steps before the original recording did.
func executorFromRun(replayRun trace.Run) replay.Executor {
	steps := make(map[int]trace.Step, len(replayRun.Steps))
	for _, s := range replayRun.Steps {
		steps[s.Idx] = s
	}
	return func(ctx context.Context, recorded trace.Step, rc *replay.Context) (trace.Step, error) {
		actual, ok := steps[recorded.Idx]
		if !ok {
			return trace.Step{}, replay.ErrReplayExhausted
		}
		return actual, nil
	}
}

func emitReplayResult(cmd *cobra.Command, root *RootOptions, result replay.Result) error {
	formatter := &OutputFormatter{Format: root.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: root.Verbose}
	if root.Format == "json" {
		if err := formatter.PrintJSON(result); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
	} else {
		if err := formatter.PrintText(fmt.Sprintf("Replay status: %s\n%s", result.Status, result.Message)); err != nil {
			return WrapExitError(ExitCommandError, "write output", err)
		}
	}

	if result.Status != replay.Match {
		return NewExitError(ExitFailure, fmt.Sprintf("replay status: %s", result.Status))
	}
	return nil
}
