package issues_test

import (
	"encoding/json"
	"strings"
	"testing"

	"storyqa/internal/bbox"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func pageWithMira(t *testing.T) map[int]issues.PageContext {
	t.Helper()
	index := issues.BuildCharacterIndex(issues.PageDetections{
		PageNumber: 2,
		Faces: []issues.FaceIdentity{
			{Name: "Mira", FaceBox: raw(`[0.1,0.4,0.2,0.5]`), FigureBox: raw(`[0.1,0.35,0.6,0.55]`)},
		},
		Bodies: []issues.BodyDetection{
			{FigureID: "figure-2", Box: raw(`[0.5,0.0,0.9,0.2]`)},
			{FigureID: "figure-1", Box: raw(`[0.1,0.36,0.62,0.56]`)},
		},
	}, 0.3, logging.NewNop())
	return map[int]issues.PageContext{2: {Width: 1000, Height: 800, Characters: index}}
}

func TestIncrementalBackfillUsesBodyBoxForNonFaceIssues(t *testing.T) {
	n := issues.NewNormalizer(logging.NewNop(), nil, pageWithMira(t))
	got := n.Normalize(&issues.IncrementalReport{
		PageNumber: 2,
		Issues: []issues.IncrementalIssue{
			{Type: "outfit changed", Description: "scarf colour differs", AffectedCharacter: "MIRA"},
		},
	})
	if len(got) != 1 {
		t.Fatalf("expected one issue, got %d", len(got))
	}
	issue := got[0]
	if issue.Type != issues.TypeClothing {
		t.Fatalf("expected clothing, got %s", issue.Type)
	}
	want := bbox.Normalized{0.1, 0.36, 0.62, 0.56}
	if issue.Region.BBox == nil || *issue.Region.BBox != want {
		t.Fatalf("expected body box backfill %v, got %v", want, issue.Region.BBox)
	}
	if issue.Region.PixelBox == nil || issue.Region.PixelBox.X != 360 || issue.Region.PixelBox.Y != 80 {
		t.Fatalf("unexpected pixel box %+v", issue.Region.PixelBox)
	}
	if issue.Severity != issues.SeverityMajor {
		t.Fatalf("expected default severity major, got %s", issue.Severity)
	}
	if issue.FixInstruction == "" {
		t.Fatal("expected default fix instruction")
	}
	if issue.RepairStatus != issues.StatusPending {
		t.Fatalf("expected pending status, got %s", issue.RepairStatus)
	}
	if issue.ID != "incremental-p2-1" {
		t.Fatalf("unexpected id %q", issue.ID)
	}
}

func TestIncrementalBackfillPrefersFaceBoxForFaceIssues(t *testing.T) {
	n := issues.NewNormalizer(logging.NewNop(), nil, pageWithMira(t))
	got := n.NormalizeIncremental(&issues.IncrementalReport{
		PageNumber: 2,
		Issues: []issues.IncrementalIssue{
			{Type: "identity drift", Severity: "critical", AffectedCharacter: "Mira", FixTarget: &issues.IncrementalFixTarget{Region: raw(`[0,0,450,300]`)}},
		},
	})
	if len(got) != 1 || got[0].Region.BBox == nil {
		t.Fatalf("expected backfilled issue, got %+v", got)
	}
	if *got[0].Region.BBox != (bbox.Normalized{0.1, 0.4, 0.2, 0.5}) {
		t.Fatalf("expected face box, got %v", *got[0].Region.BBox)
	}
	if got[0].Severity != issues.SeverityCritical {
		t.Fatalf("expected critical, got %s", got[0].Severity)
	}
}

func TestIncrementalUnknownCharacterStaysBoxless(t *testing.T) {
	n := issues.NewNormalizer(logging.NewNop(), nil, pageWithMira(t))
	got := n.NormalizeIncremental(&issues.IncrementalReport{
		PageNumber: 2,
		Issues:     []issues.IncrementalIssue{{Type: "hand", AffectedCharacter: "Otto"}},
	})
	if len(got) != 1 {
		t.Fatalf("expected one issue, got %d", len(got))
	}
	if got[0].Region.BBox != nil || got[0].Region.PixelBox != nil {
		t.Fatalf("expected no region, got %+v", got[0].Region)
	}
	if !strings.Contains(got[0].Description, "hand") {
		t.Fatalf("expected default description to name the type, got %q", got[0].Description)
	}
}

func TestCompositionMalformedBoundsAreDiscarded(t *testing.T) {
	n := issues.NewNormalizer(logging.NewNop(), nil, nil)
	got := n.NormalizeComposition(&issues.CompositionReport{
		PageNumber: 1,
		FixTargets: []issues.CompositionFixTarget{
			{Element: "background tree", Issue: "tree floats", Severity: "minor", Bounds: raw(`[0.5,0.5,0.2,0.9]`)},
			{Element: "left hand", Issue: "six fingers", Severity: "critical", Bounds: raw(`{"yMin":0.2,"xMin":0.2,"yMax":0.4,"xMax":0.3}`)},
		},
		IdentitySync: []issues.IdentitySyncEntry{{Character: "Otto", Issue: "eye colour changed"}},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(got))
	}
	if got[0].Region.BBox != nil {
		t.Fatalf("expected inverted box to be discarded, got %v", got[0].Region.BBox)
	}
	if got[0].Type != issues.TypeEnvironment || got[1].Type != issues.TypeHand || got[2].Type != issues.TypeFace {
		t.Fatalf("unexpected types %s %s %s", got[0].Type, got[1].Type, got[2].Type)
	}
	if got[1].Region.BBox == nil || got[1].Region.PixelBox != nil {
		t.Fatalf("expected bbox without pixel box when dimensions unknown, got %+v", got[1].Region)
	}
	if got[2].ID != "composition-p1-3" {
		t.Fatalf("unexpected id %q", got[2].ID)
	}
}

func TestFinalReportSpansPagesAndSkipsInvalidPages(t *testing.T) {
	report, err := issues.DecodeReport(issues.SourceFinal, []byte(`{
		"pagesToFix": [
			{"pageNumber": 0, "issues": [{"type": "face", "description": "x"}]},
			{"pageNumber": 3, "issues": [
				{"type": "prop", "description": "lantern missing", "fixTarget": {"bbox": [0.1,0.1,0.2,0.2], "instruction": "add the lantern"}}
			]},
			{"pageNumber": 4, "issues": [{"type": "arm", "description": "extra arm"}]}
		]
	}`))
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	got := issues.NewNormalizer(logging.NewNop(), nil, nil).Normalize(report)
	if len(got) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(got))
	}
	if got[0].PageNumber != 3 || got[0].FixInstruction != "add the lantern" || !got[0].HasBox() {
		t.Fatalf("unexpected first issue %+v", got[0])
	}
	if got[1].PageNumber != 4 || got[1].Type != issues.TypeAnatomy || got[1].HasBox() {
		t.Fatalf("unexpected second issue %+v", got[1])
	}
}

func TestDecodeReportRejectsUnknownSource(t *testing.T) {
	if _, err := issues.DecodeReport("quality", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown source")
	}
}
