package progress_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"frontier/internal/frontier"
	"frontier/internal/progress"
	"frontier/internal/testsupport"
)

func TestPercentAndDone(t *testing.T) {
	empty := progress.Summary{}
	if empty.Percent() != 0 || !empty.Done() {
		t.Fatalf("unexpected empty summary: %.1f done=%v", empty.Percent(), empty.Done())
	}

	s := progress.Summary{Pending: 1, Claimed: 1, Completed: 1, Failed: 1, Total: 4}
	if s.Percent() != 50 {
		t.Fatalf("expected 50%%, got %.1f", s.Percent())
	}
	if s.Done() {
		t.Fatal("expected work remaining")
	}
}

func TestBar(t *testing.T) {
	cases := []struct {
		summary progress.Summary
		width   int
		want    string
	}{
		{progress.Summary{Total: 4, Completed: 1, Failed: 1}, 10, "█████░░░░░"},
		{progress.Summary{Total: 3, Completed: 3}, 4, "████"},
		{progress.Summary{}, 3, "░░░"},
	}
	for _, tc := range cases {
		if got := progress.Bar(tc.summary, tc.width); got != tc.want {
			t.Fatalf("Bar(%+v, %d) = %q, want %q", tc.summary, tc.width, got, tc.want)
		}
	}
	if got := progress.Bar(progress.Summary{}, 0); len([]rune(got)) != progress.DefaultBarWidth {
		t.Fatalf("expected default width, got %q", got)
	}
}

func TestLine(t *testing.T) {
	line := progress.Line(progress.Summary{Total: 10, Completed: 2, Failed: 1, Claimed: 1})
	for _, want := range []string{"30.0%", "discovered: 10", "completed: 2", "failed: 1", "in flight: 1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestReportCountsItemsAndActiveNodes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := testsupport.NewClock(0)
	store := testsupport.MustOpenStore(t, cfg, frontier.WithClock(clock))

	testsupport.MustUpdate(t, store, func(ctx context.Context, tx *frontier.Tx) error {
		if err := tx.TouchNode(ctx, 1, "a"); err != nil {
			return err
		}
		for _, id := range []string{"p", "c", "d", "f"} {
			if _, err := tx.InsertItem(ctx, id, frontier.ItemMeta{}); err != nil {
				return err
			}
		}
		if err := tx.Claim(ctx, "c", 1); err != nil {
			return err
		}
		if _, err := tx.Finish(ctx, "d", frontier.Completion{Status: frontier.StatusCompleted}); err != nil {
			return err
		}
		_, err := tx.Finish(ctx, "f", frontier.Completion{Status: frontier.StatusFailed})
		return err
	})
	clock.Set(500)
	testsupport.MustUpdate(t, store, func(ctx context.Context, tx *frontier.Tx) error {
		return tx.TouchNode(ctx, 2, "b")
	})

	clock.Set(700)
	reporter := progress.NewReporter(store, 5*time.Minute, nil)
	summary, err := reporter.Report(context.Background())
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	want := progress.Summary{Pending: 1, Claimed: 1, Completed: 1, Failed: 1, Total: 4, ActiveNodes: 1}
	summary.LastUpdated = time.Time{}
	if summary != want {
		t.Fatalf("unexpected summary: got %+v want %+v", summary, want)
	}
}
