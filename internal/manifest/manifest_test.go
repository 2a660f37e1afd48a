package manifest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/manifest"
	"storyqa/internal/services"
)

func TestLoadMissingManifest(t *testing.T) {
	store := manifest.NewStore(t.TempDir(), logging.NewNop())
	if _, err := store.Load("story-1"); !errors.Is(err, manifest.ErrNoManifest) {
		t.Fatalf("expected ErrNoManifest, got %v", err)
	}
}

func TestUpdatePageKeepsOtherPages(t *testing.T) {
	root := t.TempDir()
	store := manifest.NewStore(root, logging.NewNop())
	ctx := context.Background()

	first := manifest.Page{PageNumber: 1, Issues: []issues.UnifiedIssue{{ID: "final-p1-1", Source: issues.SourceFinal, PageNumber: 1}}}
	if _, err := store.UpdatePage(ctx, "story-1", first); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}
	if _, err := store.UpdatePage(ctx, "story-1", manifest.Page{PageNumber: 2}); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}
	replaced := manifest.Page{PageNumber: 1, Issues: []issues.UnifiedIssue{
		{ID: "composition-p1-1", PageNumber: 1},
		{ID: "composition-p1-2", PageNumber: 1},
	}}
	if _, err := store.UpdatePage(ctx, "story-1", replaced); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}

	m, err := store.Load("story-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.PageNumbers(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected pages %v", got)
	}
	if len(m.Pages[1].Issues) != 2 || m.Pages[1].Issues[0].ID != "composition-p1-1" {
		t.Fatalf("page 1 not overwritten: %+v", m.Pages[1])
	}
	if m.Pages[2].Issues == nil {
		t.Fatal("expected empty issue list, not null")
	}
	if m.IssueCount() != 2 || m.Version != 1 || m.StoryID != "story-1" {
		t.Fatalf("unexpected manifest header %+v", m)
	}
	if _, err := os.Stat(filepath.Join(root, "story-1", "issues", "manifest.json")); err != nil {
		t.Fatalf("manifest not at expected path: %v", err)
	}
}

func TestConcurrentPageUpdatesAreSerialized(t *testing.T) {
	store := manifest.NewStore(t.TempDir(), logging.NewNop())
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for page := 1; page <= 8; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			_, err := store.UpdatePage(ctx, "story-2", manifest.Page{PageNumber: page, Issues: []issues.UnifiedIssue{{ID: fmt.Sprintf("final-p%d-1", page)}}})
			errs <- err
		}(page)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdatePage: %v", err)
		}
	}
	m, err := store.Load("story-2")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Pages) != 8 {
		t.Fatalf("expected 8 pages after concurrent updates, got %d", len(m.Pages))
	}
}

func TestWriteArtifactPaths(t *testing.T) {
	root := t.TempDir()
	store := manifest.NewStore(root, logging.NewNop())
	rel, abs, err := store.WriteArtifact("story-3", 4, manifest.ThumbnailName(2, issues.TypeHand), []byte{0xff, 0xd8})
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	if rel != "page4/issue_2_hand.jpg" {
		t.Fatalf("unexpected relative path %q", rel)
	}
	if abs != filepath.Join(root, "story-3", "issues", "page4", "issue_2_hand.jpg") {
		t.Fatalf("unexpected absolute path %q", abs)
	}
	if _, _, err := store.WriteArtifact("story-3", 4, "../escape.jpg", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for nested name, got %v", err)
	}
}

func TestStoryIDValidation(t *testing.T) {
	for _, id := range []string{"", "..", "a/b", " padded", `x\y`} {
		if err := manifest.ValidateStoryID(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ValidateStoryID(%q) = %v, want validation error", id, err)
		}
	}
	if err := manifest.ValidateStoryID("story_42"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateIssueTransitionsAndRecords(t *testing.T) {
	store := manifest.NewStore(t.TempDir(), logging.NewNop())
	ctx := context.Background()
	page := manifest.Page{PageNumber: 3, Issues: []issues.UnifiedIssue{
		{ID: "incremental-p3-1", PageNumber: 3, RepairStatus: issues.StatusPending},
	}}
	if _, err := store.UpdatePage(ctx, "story-4", page); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}

	updated, err := store.UpdateIssue(ctx, "story-4", "incremental-p3-1", func(issue *issues.UnifiedIssue) error {
		if err := issue.Transition(issues.StatusInGrid); err != nil {
			return err
		}
		issue.RecordAttempt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "grid 1")
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if updated.RepairStatus != issues.StatusInGrid || len(updated.RepairAttempts) != 1 {
		t.Fatalf("unexpected updated issue %+v", updated)
	}

	m, err := store.Load("story-4")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	stored := m.Pages[3].Issues[0]
	if stored.RepairStatus != issues.StatusInGrid || stored.RepairAttempts[0].Note != "grid 1" {
		t.Fatalf("update not persisted: %+v", stored)
	}

	_, err = store.UpdateIssue(ctx, "story-4", "incremental-p3-1", func(issue *issues.UnifiedIssue) error {
		return issue.Transition(issues.StatusVerified)
	})
	if !errors.Is(err, issues.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := store.UpdateIssue(ctx, "story-4", "missing", func(*issues.UnifiedIssue) error { return nil }); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
