package node_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"frontier/internal/config"
	"frontier/internal/discovery"
	"frontier/internal/frontier"
	"frontier/internal/lease"
	"frontier/internal/node"
	"frontier/internal/partition"
	"frontier/internal/testsupport"
)

func newNode(t *testing.T, cfg *config.Config, opts ...frontier.Option) *node.Node {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg, opts...)
	n, err := node.New(cfg, store, nil)
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestStartRejectsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNode(1, 2))
	first := newNode(t, cfg)
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second := newNode(t, cfg)
	err := second.Start(ctx)
	if !errors.Is(err, node.ErrNodeRunning) {
		t.Fatalf("expected ErrNodeRunning, got %v", err)
	}

	other := newNode(t, testsupport.NewConfig(t, testsupport.WithNode(2, 2), testsupport.WithStorePath(cfg.Store.Path)))
	if err := other.Start(ctx); err != nil {
		t.Fatalf("a different node id should start: %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start after Stop: %v", err)
	}
}

func TestStartRecordsHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithNode(2, 3))
	n := newNode(t, cfg)
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n.InstanceID() == "" {
		t.Fatal("expected generated instance id")
	}
	state := testsupport.MustSnapshot(t, n.Store())
	if _, ok := state.Nodes["2"]; !ok {
		t.Fatalf("expected node 2 in state, got %+v", state.Nodes)
	}
	if _, err := os.Stat(n.Store().Path() + ".node-2.lock"); err != nil {
		t.Fatalf("expected node lock file: %v", err)
	}
}

func TestIdentifiersAreCanonicalized(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	n := newNode(t, cfg)
	ctx := context.Background()

	if _, err := n.BeginSession(ctx, []string{"https://example.com/catalog"}); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	if isNew, err := n.Ingest(ctx, "HTTPS://Example.COM:443/course#top", discovery.Metadata{Title: "Course"}); err != nil || !isNew {
		t.Fatalf("Ingest: isNew=%v err=%v", isNew, err)
	}
	res, err := n.TryClaim(ctx, "https://example.com/course")
	if err != nil || res != lease.Claimed {
		t.Fatalf("TryClaim: %v %v", res, err)
	}
	if err := n.ReportOutcome(ctx, lease.Failed("https://EXAMPLE.com/course", "timeout")); err != nil {
		t.Fatalf("ReportOutcome: %v", err)
	}

	state, err := n.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(state.Failed) != 1 || state.Failed[0] != "https://example.com/course" {
		t.Fatalf("unexpected failed list: %v", state.Failed)
	}

	moved, err := n.Requeue(ctx, "https://example.com/course#again")
	if err != nil || moved != 1 {
		t.Fatalf("Requeue: moved=%d err=%v", moved, err)
	}
	if _, err := n.TryClaim(ctx, "   "); !errors.Is(err, discovery.ErrEmptyIdentifier) {
		t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
	}
}

func TestThreeNodesProcessEveryItemOnce(t *testing.T) {
	ctx := context.Background()
	base := testsupport.NewConfig(t)
	sources := []string{"https://example.com/catalog"}

	ids := make([]string, 0, 9)
	for i := 1; i <= 9; i++ {
		ids = append(ids, fmt.Sprintf("https://example.com/courses/%d", i))
	}

	nodes := make([]*node.Node, 0, 3)
	for id := 1; id <= 3; id++ {
		cfg := testsupport.NewConfig(t, testsupport.WithNode(id, 3), testsupport.WithStorePath(base.Store.Path))
		n := newNode(t, cfg)
		if err := n.Start(ctx); err != nil {
			t.Fatalf("Start node %d: %v", id, err)
		}
		if _, err := n.BeginSession(ctx, sources); err != nil {
			t.Fatalf("BeginSession node %d: %v", id, err)
		}
		nodes = append(nodes, n)
	}

	// Every node discovers the full list; only the first sighting is new.
	newCount := 0
	for _, n := range nodes {
		for _, id := range ids {
			isNew, err := n.Ingest(ctx, id, discovery.Metadata{Source: sources[0]})
			if err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if isNew {
				newCount++
			}
		}
	}
	if newCount != len(ids) {
		t.Fatalf("expected %d new identifiers, got %d", len(ids), newCount)
	}

	claimedBy := map[string]int{}
	for _, n := range nodes {
		entries, err := n.Items(ctx)
		if err != nil {
			t.Fatalf("Items: %v", err)
		}
		if len(entries) != len(ids) {
			t.Fatalf("node %d: expected %d session entries, got %d", n.ID(), len(ids), len(entries))
		}
		for _, entry := range entries {
			res, err := n.TryClaim(ctx, entry.Identifier)
			if err != nil {
				t.Fatalf("TryClaim: %v", err)
			}
			if res != lease.Claimed {
				continue
			}
			if prev, ok := claimedBy[entry.Identifier]; ok {
				t.Fatalf("%s claimed by node %d and node %d", entry.Identifier, prev, n.ID())
			}
			claimedBy[entry.Identifier] = n.ID()
			out := &lease.Output{Path: "/data/" + entry.Identifier, Bytes: 10}
			if err := n.ReportOutcome(ctx, lease.Succeeded(entry.Identifier, out)); err != nil {
				t.Fatalf("ReportOutcome: %v", err)
			}
		}
	}

	state := testsupport.MustSnapshot(t, nodes[0].Store())
	if len(state.Completed) != 9 {
		t.Fatalf("expected 9 completed, got %d (%v)", len(state.Completed), state.Completed)
	}
	if len(state.InFlight) != 0 || len(state.Failed) != 0 {
		t.Fatalf("expected nothing in flight or failed, got %+v / %v", state.InFlight, state.Failed)
	}
	for _, id := range ids {
		if want := partition.Assign(id, 3); claimedBy[id] != want {
			t.Fatalf("%s processed by node %d, want %d", id, claimedBy[id], want)
		}
	}

	summary, err := nodes[1].Progress(ctx)
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if !summary.Done() || summary.Percent() != 100 || summary.ActiveNodes != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestAssignedSourcesSplitAcrossThreeNodes(t *testing.T) {
	base := testsupport.NewConfig(t)
	var all []string
	for i := 1; i <= 15; i++ {
		all = append(all, fmt.Sprintf("HTTPS://Example.com/subjects/%d#list", i))
	}
	canonical := discovery.CanonicalSources(all)
	if len(canonical) != 15 {
		t.Fatalf("expected 15 canonical sources, got %d", len(canonical))
	}

	seen := map[string]int{}
	for id := 1; id <= 3; id++ {
		cfg := testsupport.NewConfig(t, testsupport.WithNode(id, 3), testsupport.WithStorePath(base.Store.Path))
		n := newNode(t, cfg)
		if n.TotalNodes() != 3 {
			t.Fatalf("TotalNodes = %d", n.TotalNodes())
		}
		for _, source := range n.AssignedSources(all) {
			if prev, ok := seen[source]; ok {
				t.Fatalf("%s assigned to node %d and node %d", source, prev, id)
			}
			seen[source] = id
		}
	}

	if len(seen) != len(canonical) {
		t.Fatalf("expected %d sources across nodes, got %d", len(canonical), len(seen))
	}
	for _, source := range canonical {
		if _, ok := seen[source]; !ok {
			t.Fatalf("%s not assigned to any node", source)
		}
	}
}

func TestPendingByNodeCountsUnclaimedItems(t *testing.T) {
	ctx := context.Background()
	cfg := testsupport.NewConfig(t, testsupport.WithNode(1, 3))
	n := newNode(t, cfg)

	if _, err := n.BeginSession(ctx, []string{"https://example.com/catalog"}); err != nil {
		t.Fatalf("BeginSession: %v", err)
	}
	ids := make([]string, 0, 12)
	for i := 1; i <= 12; i++ {
		id := fmt.Sprintf("https://example.com/courses/%d", i)
		ids = append(ids, id)
		if _, err := n.Ingest(ctx, id, discovery.Metadata{}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	claimed := ""
	for _, id := range ids {
		res, err := n.TryClaim(ctx, id)
		if err != nil {
			t.Fatalf("TryClaim: %v", err)
		}
		if res == lease.Claimed {
			claimed = id
			break
		}
	}
	if claimed == "" {
		t.Fatal("node 1 owns none of the identifiers")
	}

	pending := make([]string, 0, len(ids)-1)
	for _, id := range ids {
		if id != claimed {
			pending = append(pending, id)
		}
	}
	want := partition.New(3).Distribution(pending)

	got, err := n.PendingByNode(ctx)
	if err != nil {
		t.Fatalf("PendingByNode: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected a count for every node, got %v", got)
	}
	for node, count := range want {
		if got[node] != count {
			t.Fatalf("node %d: pending %d, want %d (got %v)", node, got[node], count, got)
		}
	}
}

func TestSweepReleasesStoppedNodeClaims(t *testing.T) {
	ctx := context.Background()
	clock := testsupport.NewClock(0)
	cfgA := testsupport.NewConfig(t, testsupport.WithNode(1, 2), testsupport.WithTimings(3600, 300))
	cfgB := testsupport.NewConfig(t, testsupport.WithNode(2, 2), testsupport.WithTimings(3600, 300),
		testsupport.WithStorePath(cfgA.Store.Path))
	a := newNode(t, cfgA, frontier.WithClock(clock))
	b := newNode(t, cfgB, frontier.WithClock(clock))

	if _, err := a.Sweep(ctx); err != nil {
		t.Fatalf("Sweep a: %v", err)
	}
	var mine string
	for i := 0; ; i++ {
		id := fmt.Sprintf("item-%d", i)
		if partition.Assign(id, 2) == 1 {
			mine = id
			break
		}
	}
	if res, err := a.TryClaim(ctx, mine); err != nil || res != lease.Claimed {
		t.Fatalf("TryClaim: %v %v", res, err)
	}

	clock.Set(601)
	report, err := b.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep b: %v", err)
	}
	if len(report.Released) != 1 || report.Released[0].Identifier != mine {
		t.Fatalf("expected %s released, got %+v", mine, report.Released)
	}
	state := testsupport.MustSnapshot(t, b.Store())
	if _, ok := state.Nodes["1"]; ok {
		t.Fatalf("expected node 1 pruned, got %+v", state.Nodes)
	}
}
