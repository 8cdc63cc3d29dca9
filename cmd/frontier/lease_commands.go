package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"frontier/internal/lease"
)

func newClaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <identifier>",
		Short: "Try to claim an identifier for this node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				res, err := s.node.TryClaim(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.String())
				if res != lease.Claimed {
					return fmt.Errorf("claim %s: %s", args[0], res)
				}
				return nil
			})
		},
	}
}

func newCompleteCommand(ctx *commandContext) *cobra.Command {
	var (
		failed bool
		reason string
		output string
	)
	cmd := &cobra.Command{
		Use:   "complete <identifier>",
		Short: "Record the outcome of processing an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if !failed && reason != "" {
				return errors.New("--reason requires --failed")
			}
			var result lease.Result
			if failed {
				if strings.TrimSpace(reason) == "" {
					reason = "marked failed by operator"
				}
				result = lease.Failed(id, reason)
			} else {
				var out *lease.Output
				if path := strings.TrimSpace(output); path != "" {
					out = &lease.Output{Path: path}
					if info, err := os.Stat(path); err == nil {
						out.Bytes = info.Size()
					}
				}
				result = lease.Succeeded(id, out)
			}

			return ctx.withNode(cmd, func(s *session) error {
				if err := s.node.ReportOutcome(cmd.Context(), result); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s as %s\n", id, result.Outcome())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Record a failure instead of a success")
	cmd.Flags().StringVar(&reason, "reason", "", "Failure reason (with --failed)")
	cmd.Flags().StringVar(&output, "output", "", "Path where the fetched content was stored")
	return cmd
}

func newRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue [identifier...]",
		Short: "Move failed items back to pending (all failed items when none are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				moved, err := s.node.Requeue(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d item(s)\n", moved)
				return nil
			})
		},
	}
}
