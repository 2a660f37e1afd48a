package issues_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyqa/internal/issues"
	"storyqa/internal/logging"
)

func TestMapTypeKeywords(t *testing.T) {
	cases := map[string]issues.Type{
		"Face identity":        issues.TypeFace,
		"finger count":         issues.TypeHand,
		"extra leg":            issues.TypeAnatomy,
		"Clothing mismatch":    issues.TypeClothing,
		"wrong dress":          issues.TypeClothing,
		"background lighting":  issues.TypeEnvironment,
		"prop scale":           issues.TypeObject,
		"something unexpected": issues.TypeObject,
		"":                     issues.TypeObject,
	}
	for label, want := range cases {
		if got := issues.MapType(label); got != want {
			t.Fatalf("MapType(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestTypeGlossaryPrependsRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glossary.yaml")
	data := []byte("rules:\n  - type: Clothing\n    keywords: [hat, Scarf]\n  - type: environment\n    keywords: [sky]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write glossary: %v", err)
	}
	mapper, err := issues.LoadTypeGlossary(path)
	if err != nil {
		t.Fatalf("LoadTypeGlossary: %v", err)
	}
	if got := mapper.Map("scarf on the face"); got != issues.TypeClothing {
		t.Fatalf("expected glossary rule to win, got %s", got)
	}
	if got := mapper.Map("night sky"); got != issues.TypeEnvironment {
		t.Fatalf("expected environment, got %s", got)
	}
	if got := mapper.Map("crooked finger"); got != issues.TypeHand {
		t.Fatalf("expected built-in rules to remain, got %s", got)
	}
	if _, err := issues.ParseTypeGlossary([]byte("rules:\n  - type: vehicle\n    keywords: [car]\n")); err == nil {
		t.Fatal("expected unknown type to be rejected")
	}
}

func TestParseSeverity(t *testing.T) {
	if issues.ParseSeverity("CRITICAL") != issues.SeverityCritical {
		t.Fatal("expected critical")
	}
	if issues.ParseSeverity("minor") != issues.SeverityMinor {
		t.Fatal("expected minor")
	}
	if issues.ParseSeverity("") != issues.SeverityMajor || issues.ParseSeverity("whatever") != issues.SeverityMajor {
		t.Fatal("expected major default")
	}
	if !(issues.SeverityCritical.Rank() < issues.SeverityMajor.Rank() && issues.SeverityMajor.Rank() < issues.SeverityMinor.Rank()) {
		t.Fatal("severity ranks out of order")
	}
}

func TestRepairStatusTransitions(t *testing.T) {
	issue := issues.UnifiedIssue{RepairStatus: issues.StatusPending}
	if err := issue.Transition(issues.StatusRepaired); !errors.Is(err, issues.ErrInvalidTransition) {
		t.Fatalf("expected skipped step to fail, got %v", err)
	}
	for _, next := range []issues.RepairStatus{issues.StatusInGrid, issues.StatusRepaired, issues.StatusVerified} {
		if err := issue.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := issue.Transition(issues.StatusFailed); err == nil {
		t.Fatal("expected terminal state to reject failed")
	}

	other := issues.UnifiedIssue{}
	if err := other.Transition(issues.StatusFailed); err != nil {
		t.Fatalf("failed should be reachable from pending: %v", err)
	}
}

func TestRecordAttemptAppends(t *testing.T) {
	issue := issues.UnifiedIssue{RepairStatus: issues.StatusInGrid}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	first := issue.RecordAttempt(at, "grid 1")
	_ = issue.Transition(issues.StatusRepaired)
	second := issue.RecordAttempt(at.Add(time.Minute), "grid 2")
	if first.Attempt != 1 || second.Attempt != 2 {
		t.Fatalf("unexpected attempt numbers %d %d", first.Attempt, second.Attempt)
	}
	if issue.RepairAttempts[0].Status != issues.StatusInGrid || issue.RepairAttempts[1].Status != issues.StatusRepaired {
		t.Fatalf("unexpected attempt log %+v", issue.RepairAttempts)
	}
	if issue.RepairAttempts[0].At.Location() != time.UTC {
		t.Fatal("expected attempts recorded in UTC")
	}
}

func TestBuildCharacterIndexFallsBackToContainment(t *testing.T) {
	index := issues.BuildCharacterIndex(issues.PageDetections{
		PageNumber: 1,
		Faces: []issues.FaceIdentity{
			{Name: "Otto", FaceBox: raw(`[0.1,0.1,0.2,0.2]`)},
			{Name: "Bea", FaceBox: raw(`[0.1,0.7,0.2,0.8]`), FigureBox: raw(`[0.05,0.6,0.9,0.9]`)},
			{Name: "Ghost", FaceBox: raw(`[5,5,9,9]`)},
		},
		Bodies: []issues.BodyDetection{
			{FigureID: "b1", Box: raw(`[0.05,0.62,0.88,0.9]`)},
			{FigureID: "b2", Box: raw(`[0.05,0.05,0.9,0.3]`)},
		},
	}, 0.3, logging.NewNop())

	if index.Len() != 2 {
		t.Fatalf("expected 2 characters, got %d", index.Len())
	}
	otto, ok := index.Lookup("otto")
	if !ok || otto.FigureID != "b2" || otto.BodyBox == nil {
		t.Fatalf("expected Otto joined to b2 by containment, got %+v", otto)
	}
	bea, ok := index.Lookup("  BEA ")
	if !ok || bea.FigureID != "b1" {
		t.Fatalf("expected Bea joined to b1 by IoU, got %+v", bea)
	}
	if _, ok := index.Lookup("ghost"); ok {
		t.Fatal("character with only a malformed box should not be indexed")
	}
}
