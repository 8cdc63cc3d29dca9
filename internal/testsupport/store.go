package testsupport

import (
	"context"
	"testing"

	"frontier/internal/config"
	"frontier/internal/frontier"
)

// MustOpenStore opens a frontier.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...frontier.Option) *frontier.Store {
	t.Helper()

	store, err := frontier.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("frontier.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustUpdate runs fn in a store transaction and fails the test on error.
func MustUpdate(t testing.TB, store *frontier.Store, fn func(context.Context, *frontier.Tx) error) {
	t.Helper()

	ctx := context.Background()
	if err := store.Update(ctx, func(tx *frontier.Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("store.Update: %v", err)
	}
}

// MustSnapshot reads the store state and fails the test on error.
func MustSnapshot(t testing.TB, store *frontier.Store) frontier.State {
	t.Helper()

	state, err := store.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("store.Snapshot: %v", err)
	}
	return state
}
