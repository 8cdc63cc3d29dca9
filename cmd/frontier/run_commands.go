package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"frontier/internal/logging"
	"frontier/internal/metrics"
	"frontier/internal/worker"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one heartbeat cycle: touch this node, prune dead nodes, release stale claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				report, err := s.node.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(report.DeadNodes) > 0 {
					ids := make([]string, 0, len(report.DeadNodes))
					for _, id := range report.DeadNodes {
						ids = append(ids, strconv.Itoa(id))
					}
					fmt.Fprintf(out, "Pruned dead node(s): %s\n", strings.Join(ids, ", "))
				}
				if len(report.Released) == 0 {
					fmt.Fprintln(out, "No stale claims")
					return nil
				}
				rows := make([][]string, 0, len(report.Released))
				for _, rel := range report.Released {
					rows = append(rows, []string{rel.Identifier, strconv.Itoa(rel.PreviousOwner), rel.Reason, formatAge(rel.ClaimAge)})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Identifier", "Previous owner", "Reason", "Claim age"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}

func newHeartbeatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat",
		Short: "Keep this node alive and recover stale claims until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return ctx.withNode(cmd, func(s *session) error {
				if err := s.node.Start(signalCtx); err != nil {
					return err
				}
				metricsErr := serveMetrics(signalCtx, s)

				select {
				case <-signalCtx.Done():
				case err := <-metricsErr:
					return err
				}
				s.logger.Info("heartbeat shutting down")
				return nil
			})
		},
	}
}

func newWorkCommand(ctx *commandContext) *cobra.Command {
	var (
		execTemplate string
		maxItems     int
		delaySeconds int
		jsonOutput   bool
	)
	cmd := &cobra.Command{
		Use:   "work",
		Short: "Process this node's session list with an external fetch command",
		Long: `Process the discovery session in order. Each item assigned to this node is
claimed and passed to the --exec command, with {} replaced by the identifier
(or appended when {} is absent). A zero exit status records the item as
completed and the last line of stdout as its output path; anything else records
it as failed with the last line of stderr as the reason.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			processor, err := worker.NewCommandProcessor(execTemplate)
			if err != nil {
				return fmt.Errorf("--exec: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return ctx.withNode(cmd, func(s *session) error {
				settings := worker.SettingsFromConfig(s.cfg)
				if cmd.Flags().Changed("max-items") {
					settings.MaxItems = maxItems
				}
				if cmd.Flags().Changed("delay") {
					settings.ItemDelay = secondsDuration(delaySeconds)
				}

				if err := s.node.Start(signalCtx); err != nil {
					return err
				}
				metricsCtx, stopMetrics := context.WithCancel(signalCtx)
				defer stopMetrics()
				metricsErr := serveMetrics(metricsCtx, s)

				runner := worker.NewRunner(s.node, processor, settings,
					worker.WithLogger(s.logger), worker.WithMetrics(s.metrics))
				summary, runErr := runner.Run(signalCtx)
				stopMetrics()
				if metricsErr != nil {
					if err := <-metricsErr; err != nil {
						s.logger.Warn("metrics listener failed", logging.Error(err))
					}
				}

				if jsonOutput {
					if err := writeJSON(cmd, summary); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Discovered: %d\n", summary.Discovered)
					fmt.Fprintf(out, "Processed:  %d\n", summary.Processed)
					fmt.Fprintf(out, "Failed:     %d\n", summary.Failed)
					fmt.Fprintf(out, "Skipped:    %d\n", summary.Skipped)
				}
				if errors.Is(runErr, context.Canceled) {
					s.logger.Info("work interrupted; claims in progress will be recovered after the lease timeout")
				}
				return noSessionHint(runErr)
			})
		},
	}
	cmd.Flags().StringVar(&execTemplate, "exec", "", "Fetch command template, e.g. \"fetch-page --out /data {}\"")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Stop after this many items (overrides worker.max_items)")
	cmd.Flags().IntVar(&delaySeconds, "delay", 0, "Seconds between items (overrides worker.item_delay_seconds)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")
	_ = cmd.MarkFlagRequired("exec")
	return cmd
}

// serveMetrics starts the /metrics listener when metrics.bind is set. The
// returned channel yields the listener's exit error once ctx is done; it is
// nil when no listener was started.
func serveMetrics(ctx context.Context, s *session) <-chan error {
	if s.cfg.Metrics.Bind == "" {
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- metrics.Serve(ctx, s.cfg.Metrics.Bind, s.registry, s.logger)
	}()
	return errCh
}
