package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"frontier/internal/frontier"
	"frontier/internal/progress"
)

type statusReport struct {
	Store   string           `json:"store"`
	Summary progress.Summary `json:"summary"`
	Percent float64          `json:"percent"`
	Nodes   []nodeStatus     `json:"nodes"`
}

// nodeStatus is one row of the node table. LastActive is zero for a node
// that has never sent a heartbeat.
type nodeStatus struct {
	NodeID     int   `json:"node_id"`
	LastActive int64 `json:"last_active"`
	InFlight   int   `json:"in_flight"`
	Pending    int   `json:"pending"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show frontier progress and node liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				report, err := buildStatusReport(cmd.Context(), s)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				renderStatus(out, report, time.Now(), shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newStateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Dump the persisted frontier as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				state, err := s.node.State(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, state)
			})
		},
	}
}

func buildStatusReport(ctx context.Context, s *session) (statusReport, error) {
	summary, err := s.node.Progress(ctx)
	if err != nil {
		return statusReport{}, err
	}
	state, err := s.node.State(ctx)
	if err != nil {
		return statusReport{}, err
	}
	pending, err := s.node.PendingByNode(ctx)
	if err != nil {
		return statusReport{}, err
	}
	return statusReport{
		Store:   s.node.Store().Path(),
		Summary: summary,
		Percent: summary.Percent(),
		Nodes:   nodeStatuses(state, s.node.TotalNodes(), pending),
	}, nil
}

// nodeStatuses lists every node in [1, total] plus any node id recorded in
// state beyond it, such as one left over from a larger deployment.
func nodeStatuses(state frontier.State, total int, pending map[int]int) []nodeStatus {
	byID := make(map[int]*nodeStatus, total)
	for id := 1; id <= total; id++ {
		byID[id] = &nodeStatus{NodeID: id}
	}
	for key, ns := range state.Nodes {
		id, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		row, ok := byID[id]
		if !ok {
			row = &nodeStatus{NodeID: id}
			byID[id] = row
		}
		row.LastActive = ns.LastActive
	}
	for _, claim := range state.InFlight {
		if row, ok := byID[claim.NodeID]; ok {
			row.InFlight++
		}
	}
	for id, count := range pending {
		if row, ok := byID[id]; ok {
			row.Pending = count
		}
	}

	nodes := make([]nodeStatus, 0, len(byID))
	for _, row := range byID {
		nodes = append(nodes, *row)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes
}

func renderStatus(out io.Writer, report statusReport, now time.Time, colorize bool) {
	s := report.Summary
	fmt.Fprintf(out, "Store: %s\n", report.Store)
	fmt.Fprintf(out, "[%s] %.1f%%\n\n", progress.Bar(s, progress.DefaultBarWidth), s.Percent())

	rows := [][]string{
		{colorizeText("pending", "", colorize), strconv.Itoa(s.Pending)},
		{colorizeText("claimed", ansiYellow, colorize), strconv.Itoa(s.Claimed)},
		{colorizeText("completed", ansiGreen, colorize), strconv.Itoa(s.Completed)},
		{colorizeText("failed", ansiRed, colorize), strconv.Itoa(s.Failed)},
		{"total", strconv.Itoa(s.Total)},
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Items"}, rows, []columnAlignment{alignLeft, alignRight}))

	if len(report.Nodes) == 0 {
		fmt.Fprintln(out, "No nodes have reported a heartbeat")
		return
	}
	nodeRows := make([][]string, 0, len(report.Nodes))
	for _, n := range report.Nodes {
		lastActive, age := "-", "-"
		if n.LastActive > 0 {
			last := time.Unix(n.LastActive, 0)
			lastActive = last.UTC().Format(time.RFC3339)
			age = formatAge(now.Sub(last))
		}
		nodeRows = append(nodeRows, []string{
			strconv.Itoa(n.NodeID),
			lastActive,
			age,
			strconv.Itoa(n.InFlight),
			strconv.Itoa(n.Pending),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Node", "Last active", "Age", "In flight", "Pending"},
		nodeRows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight},
	))
	fmt.Fprintf(out, "%d active node(s)\n", s.ActiveNodes)
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strings.TrimSpace(d.Truncate(time.Second).String())
}
