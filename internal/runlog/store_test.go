package runlog_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

func openStore(t *testing.T) *runlog.Store {
	t.Helper()
	store, err := runlog.Open(context.Background(), filepath.Join(t.TempDir(), "runs", "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	score := 80

	first, err := store.Record(ctx, runlog.Run{Kind: runlog.KindValidation, StoryID: "s1", PageNumber: 2, Passed: false, Repaired: true, IssueCount: 3, CriticalCount: 1, StartedAt: base, FinishedAt: base.Add(2 * time.Second)})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if first.ID == "" || first.Outcome != services.OutcomeOK {
		t.Fatalf("expected defaults to be applied, got %+v", first)
	}
	if _, err := store.Record(ctx, runlog.Run{Kind: runlog.KindFidelity, StoryID: "s1", PageNumber: 2, Score: &score, StartedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Record(ctx, runlog.Run{Kind: runlog.KindTargeting, StoryID: "s2", Outcome: services.OutcomeDegraded, StartedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := store.Recent(ctx, runlog.Filter{StoryID: "s1"})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs for s1, got %d", len(runs))
	}
	if runs[0].Kind != runlog.KindFidelity || runs[0].Score == nil || *runs[0].Score != 80 {
		t.Fatalf("expected newest fidelity run first, got %+v", runs[0])
	}
	if !runs[1].Repaired || runs[1].CriticalCount != 1 || runs[1].Duration() != 2*time.Second {
		t.Fatalf("unexpected validation run %+v", runs[1])
	}

	limited, err := store.Recent(ctx, runlog.Filter{Limit: 1})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(limited) != 1 || limited[0].StoryID != "s2" {
		t.Fatalf("expected newest run overall, got %+v", limited)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary[runlog.KindTargeting][services.OutcomeDegraded] != 1 || summary[runlog.KindValidation][services.OutcomeOK] != 1 {
		t.Fatalf("unexpected summary %v", summary)
	}
}

func TestRecordRequiresStory(t *testing.T) {
	store := openStore(t)
	if _, err := store.Record(context.Background(), runlog.Run{Kind: runlog.KindTargeting}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReopenKeepsRunsAndHealth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()
	store, err := runlog.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Record(ctx, runlog.Run{Kind: runlog.KindTargeting, StoryID: "s"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	reopened, err := runlog.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	health, err := reopened.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.Exists || !health.Readable || !health.IntegrityCheck || health.TotalRuns != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := runlog.Open(context.Background(), " "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestOpenRejectsNewerLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := runlog.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = store.Close()

	reopened, err := runlog.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("reopen at same version: %v", err)
	}
	_ = reopened.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 9"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := runlog.Open(context.Background(), path); !errors.Is(err, runlog.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
