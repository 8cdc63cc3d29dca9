package lease_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"frontier/internal/frontier"
	"frontier/internal/lease"
	"frontier/internal/partition"
	"frontier/internal/testsupport"
)

type fixture struct {
	store *frontier.Store
	clock *testsupport.Clock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithNode(1, 3), testsupport.WithTimings(3600, 300))
	clock := testsupport.NewClock(0)
	return fixture{
		store: testsupport.MustOpenStore(t, cfg, frontier.WithClock(clock)),
		clock: clock,
	}
}

func (f fixture) manager(node int) *lease.Manager {
	return lease.NewManager(f.store, lease.Settings{
		NodeID:            node,
		TotalNodes:        3,
		LeaseTimeout:      time.Hour,
		HeartbeatInterval: 5 * time.Minute,
	})
}

func (f fixture) item(t *testing.T, id string) frontier.Item {
	t.Helper()
	var item frontier.Item
	err := f.store.View(context.Background(), func(tx *frontier.Tx) error {
		var (
			ok  bool
			err error
		)
		item, ok, err = tx.Item(context.Background(), id)
		if err == nil && !ok {
			t.Fatalf("item %s not found", id)
		}
		return err
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	return item
}

func mustClaim(t *testing.T, m *lease.Manager, id string, node int, want lease.ClaimResult) {
	t.Helper()
	got, err := m.Claim(context.Background(), id, node)
	if err != nil {
		t.Fatalf("Claim(%s, %d): %v", id, node, err)
	}
	if got != want {
		t.Fatalf("Claim(%s, %d) = %s, want %s", id, node, got, want)
	}
}

func TestClaimIsIdempotentForOwner(t *testing.T) {
	f := newFixture(t)
	m := f.manager(1)

	f.clock.Set(10)
	mustClaim(t, m, "item-x", 1, lease.Claimed)
	f.clock.Set(500)
	mustClaim(t, m, "item-x", 1, lease.Claimed)

	item := f.item(t, "item-x")
	if item.Status != frontier.StatusClaimed || item.OwnerNode != 1 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if item.ClaimStart.Unix() != 10 {
		t.Fatalf("self-claim must keep the original start, got %d", item.ClaimStart.Unix())
	}
}

func TestClaimRespectsLeaseTimeout(t *testing.T) {
	f := newFixture(t)
	a, b := f.manager(1), f.manager(2)

	f.clock.Set(0)
	mustClaim(t, a, "item-x", 1, lease.Claimed)

	f.clock.Set(100)
	mustClaim(t, b, "item-x", 2, lease.AlreadyOwnedByOther)

	f.clock.Set(3600)
	mustClaim(t, b, "item-x", 2, lease.AlreadyOwnedByOther)

	f.clock.Set(3700)
	mustClaim(t, b, "item-x", 2, lease.Claimed)

	item := f.item(t, "item-x")
	if item.OwnerNode != 2 || item.ClaimStart.Unix() != 3700 {
		t.Fatalf("expected ownership transfer at 3700, got owner %d start %d", item.OwnerNode, item.ClaimStart.Unix())
	}

	// The original owner has now lost the item.
	mustClaim(t, a, "item-x", 1, lease.AlreadyOwnedByOther)
}

func TestClaimTakesOverFromDeadOwner(t *testing.T) {
	f := newFixture(t)
	a, b := f.manager(1), f.manager(2)

	f.clock.Set(0)
	testsupport.MustUpdate(t, f.store, func(ctx context.Context, tx *frontier.Tx) error {
		return tx.TouchNode(ctx, 1, "a")
	})
	mustClaim(t, a, "item-x", 1, lease.Claimed)

	f.clock.Set(600)
	mustClaim(t, b, "item-x", 2, lease.AlreadyOwnedByOther)

	f.clock.Set(601)
	mustClaim(t, b, "item-x", 2, lease.Claimed)
	if owner := f.item(t, "item-x").OwnerNode; owner != 2 {
		t.Fatalf("expected node 2 to own the item, got %d", owner)
	}
}

func TestClaimTreatsOwnerWithoutHeartbeatAsAlive(t *testing.T) {
	f := newFixture(t)
	a, b := f.manager(1), f.manager(2)

	mustClaim(t, a, "item-x", 1, lease.Claimed)
	f.clock.Set(3000)
	mustClaim(t, b, "item-x", 2, lease.AlreadyOwnedByOther)
}

func TestCompletionIsTerminal(t *testing.T) {
	f := newFixture(t)
	a, b := f.manager(1), f.manager(2)
	ctx := context.Background()

	mustClaim(t, a, "item-x", 1, lease.Claimed)
	if err := a.Complete(ctx, "item-x", lease.Success); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	mustClaim(t, a, "item-x", 1, lease.AlreadyDone)
	f.clock.Set(10000)
	mustClaim(t, b, "item-x", 2, lease.AlreadyDone)

	if err := b.Complete(ctx, "item-x", lease.Failure); err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	item := f.item(t, "item-x")
	if item.Status != frontier.StatusCompleted || item.OwnerNode != 0 {
		t.Fatalf("expected completed without owner, got %+v", item)
	}

	state := testsupport.MustSnapshot(t, f.store)
	if len(state.InFlight) != 0 || len(state.Failed) != 0 || len(state.Completed) != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestReportOutcomePersistsDetails(t *testing.T) {
	f := newFixture(t)
	m := f.manager(1)
	ctx := context.Background()

	mustClaim(t, m, "ok", 1, lease.Claimed)
	mustClaim(t, m, "bad", 1, lease.Claimed)
	if err := m.ReportOutcome(ctx, lease.Succeeded("ok", &lease.Output{Path: "/data/ok/index.html", Bytes: 2048})); err != nil {
		t.Fatalf("ReportOutcome success: %v", err)
	}
	if err := m.ReportOutcome(ctx, lease.Failed("bad", "extraction failed")); err != nil {
		t.Fatalf("ReportOutcome failure: %v", err)
	}

	ok := f.item(t, "ok")
	if ok.Status != frontier.StatusCompleted || ok.OutputPath != "/data/ok/index.html" || ok.OutputBytes != 2048 {
		t.Fatalf("unexpected completed item: %+v", ok)
	}
	bad := f.item(t, "bad")
	if bad.Status != frontier.StatusFailed || bad.FailureReason != "extraction failed" {
		t.Fatalf("unexpected failed item: %+v", bad)
	}
}

func TestCompleteRegistersUnknownIdentifier(t *testing.T) {
	f := newFixture(t)
	m := f.manager(1)

	if err := m.Complete(context.Background(), "never-ingested", lease.Failure); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if status := f.item(t, "never-ingested").Status; status != frontier.StatusFailed {
		t.Fatalf("expected failed, got %s", status)
	}
}

func TestTryClaimHonoursPartition(t *testing.T) {
	f := newFixture(t)
	managers := map[int]*lease.Manager{1: f.manager(1), 2: f.manager(2), 3: f.manager(3)}
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("https://example.com/course/%d", i)
		owner := partition.Assign(id, 3)
		for node, m := range managers {
			got, err := m.TryClaim(ctx, id)
			if err != nil {
				t.Fatalf("TryClaim: %v", err)
			}
			want := lease.NotAssigned
			if node == owner {
				want = lease.Claimed
			}
			if got != want {
				t.Fatalf("node %d TryClaim(%s) = %s, want %s", node, id, got, want)
			}
		}
		if item := f.item(t, id); item.OwnerNode != owner {
			t.Fatalf("expected owner %d, got %d", owner, item.OwnerNode)
		}
	}
}

func TestRequeueReturnsFailedItemsToPending(t *testing.T) {
	f := newFixture(t)
	m := f.manager(1)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2"} {
		if err := m.ReportOutcome(ctx, lease.Failed(id, "boom")); err != nil {
			t.Fatalf("ReportOutcome: %v", err)
		}
	}
	moved, err := m.Requeue(ctx)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if moved != 2 {
		t.Fatalf("expected 2 requeued, got %d", moved)
	}
	mustClaim(t, m, "f1", 1, lease.Claimed)
}

func TestEmptyIdentifierIsRejected(t *testing.T) {
	f := newFixture(t)
	m := f.manager(1)
	if _, err := m.Claim(context.Background(), "", 1); !errors.Is(err, lease.ErrEmptyIdentifier) {
		t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
	}
	if err := m.ReportOutcome(context.Background(), lease.Result{}); !errors.Is(err, lease.ErrEmptyIdentifier) {
		t.Fatalf("expected ErrEmptyIdentifier, got %v", err)
	}
}

func TestClaimResultStrings(t *testing.T) {
	cases := map[lease.ClaimResult]string{
		lease.Claimed:             "claimed",
		lease.AlreadyOwnedByOther: "already_owned_by_other",
		lease.AlreadyDone:         "already_done",
		lease.NotAssigned:         "not_assigned",
	}
	for result, want := range cases {
		if result.String() != want {
			t.Fatalf("%d.String() = %q, want %q", result, result.String(), want)
		}
	}
}
