package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"frontier/internal/frontier"
	"frontier/internal/metrics"
)

// DefaultBarWidth is the bar width used by progress lines.
const DefaultBarWidth = 30

// Summary is a point-in-time view of the whole frontier.
type Summary struct {
	Pending     int       `json:"pending"`
	Claimed     int       `json:"claimed"`
	Completed   int       `json:"completed"`
	Failed      int       `json:"failed"`
	Total       int       `json:"total"`
	ActiveNodes int       `json:"active_nodes"`
	LastUpdated time.Time `json:"last_updated"`
}

// Percent is the share of known items that reached a terminal status.
func (s Summary) Percent() float64 {
	total := s.Total
	if total < 1 {
		total = 1
	}
	return float64(s.Completed+s.Failed) / float64(total) * 100
}

// Done reports whether no pending or claimed work remains.
func (s Summary) Done() bool {
	return s.Pending == 0 && s.Claimed == 0
}

// Reporter computes Summaries.
type Reporter struct {
	store     *frontier.Store
	deadAfter time.Duration
	metrics   *metrics.Collectors
}

// NewReporter builds a Reporter. Nodes whose last heartbeat is older than
// twice heartbeatInterval are not counted as active.
func NewReporter(store *frontier.Store, heartbeatInterval time.Duration, collectors *metrics.Collectors) *Reporter {
	return &Reporter{store: store, deadAfter: 2 * heartbeatInterval, metrics: collectors}
}

// Report reads the current Summary and refreshes the item gauges.
func (r *Reporter) Report(ctx context.Context) (Summary, error) {
	var summary Summary
	err := r.store.View(ctx, func(tx *frontier.Tx) error {
		counts, err := tx.Counts(ctx)
		if err != nil {
			return err
		}
		nodes, err := tx.Nodes(ctx)
		if err != nil {
			return err
		}
		lastUpdated, err := tx.LastUpdated(ctx)
		if err != nil {
			return err
		}

		cutoff := tx.Now().Add(-r.deadAfter)
		active := 0
		for _, node := range nodes {
			if !node.LastActive.Before(cutoff) {
				active++
			}
		}
		summary = Summary{
			Pending:     counts.Pending,
			Claimed:     counts.Claimed,
			Completed:   counts.Completed,
			Failed:      counts.Failed,
			Total:       counts.Total(),
			ActiveNodes: active,
			LastUpdated: lastUpdated,
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	r.metrics.SetItems(map[string]int{
		string(frontier.StatusPending):   summary.Pending,
		string(frontier.StatusClaimed):   summary.Claimed,
		string(frontier.StatusCompleted): summary.Completed,
		string(frontier.StatusFailed):    summary.Failed,
	}, summary.ActiveNodes)
	return summary, nil
}

// Bar renders a fixed-width completion bar.
func Bar(s Summary, width int) string {
	if width <= 0 {
		width = DefaultBarWidth
	}
	filled := int(float64(width) * s.Percent() / 100)
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

// Line renders the one-line progress display used during a run.
func Line(s Summary) string {
	return fmt.Sprintf("[%s] %.1f%% | discovered: %d | completed: %d | failed: %d | in flight: %d",
		Bar(s, DefaultBarWidth), s.Percent(), s.Total, s.Completed, s.Failed, s.Claimed)
}
