package testsupport

import (
	"context"
	"testing"

	"storyqa/internal/config"
	"storyqa/internal/runlog"
)

// MustOpenRunLog opens the run ledger at the config's path and registers cleanup.
func MustOpenRunLog(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(context.Background(), cfg.Paths.RunLogPath)
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustRecord appends a run for tests.
func MustRecord(t testing.TB, store *runlog.Store, run runlog.Run) runlog.Run {
	t.Helper()

	recorded, err := store.Record(context.Background(), run)
	if err != nil {
		t.Fatalf("store.Record: %v", err)
	}
	return recorded
}
