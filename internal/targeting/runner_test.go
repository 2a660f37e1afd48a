package targeting_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyqa/internal/extract"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/manifest"
	"storyqa/internal/targeting"
	"storyqa/internal/testsupport"
)

func mustReport(t *testing.T, source issues.Source, raw string) issues.Report {
	t.Helper()
	report, err := issues.DecodeReport(source, []byte(raw))
	if err != nil {
		t.Fatalf("decode %s report: %v", source, err)
	}
	return report
}

func newRunner(t *testing.T) (*targeting.Runner, *manifest.Store) {
	t.Helper()
	store := manifest.NewStore(t.TempDir(), logging.NewNop())
	runner := targeting.NewRunner(extract.New(extract.Options{}), store, targeting.Options{PageConcurrency: 2}, logging.NewNop())
	return runner, store
}

func overlappingReports(t *testing.T) []issues.Report {
	return []issues.Report{
		mustReport(t, issues.SourceComposition, `{
			"pageNumber": 4,
			"fixTargets": [{"element": "hand", "issue": "six fingers", "severity": "major", "bounds": [0.1, 0.1, 0.3, 0.3], "fixInstruction": "draw five fingers"}]
		}`),
		mustReport(t, issues.SourceIncremental, `{
			"pageNumber": 4,
			"issues": [{"type": "extra fingers", "description": "left hand has six fingers", "severity": "critical", "fixTarget": {"region": [0.12, 0.11, 0.31, 0.29], "instruction": "redraw the left hand"}}]
		}`),
		mustReport(t, issues.SourceFinal, `{
			"pagesToFix": [{"pageNumber": 4, "issues": [{"type": "text", "description": "caption typo", "severity": "minor"}]}]
		}`),
	}
}

func TestRunDeduplicatesExtractsAndPersists(t *testing.T) {
	runner, store := newRunner(t)
	ctx := context.Background()

	result, err := runner.Run(ctx, targeting.Input{
		StoryID: "story-1",
		Pages:   []targeting.PageInput{{PageNumber: 4, Image: testsupport.PageImage(t, 1000, 800)}},
		Reports: overlappingReports(t),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Pages) != 1 {
		t.Fatalf("expected one page, got %d", len(result.Pages))
	}
	page := result.Pages[0]
	if page.Error != "" {
		t.Fatalf("unexpected page error %q", page.Error)
	}
	if page.Normalized != 3 || page.Dropped != 1 || len(page.Issues) != 2 {
		t.Fatalf("unexpected counts: normalized=%d dropped=%d kept=%d", page.Normalized, page.Dropped, len(page.Issues))
	}
	if page.Issues[0].Source != issues.SourceIncremental || page.Issues[0].Severity != issues.SeverityCritical {
		t.Fatalf("expected critical incremental issue to survive first, got %+v", page.Issues[0])
	}
	if page.Issues[1].HasBox() {
		t.Fatalf("expected boxless final issue to survive, got %+v", page.Issues[1])
	}
	if page.Extracted != 1 {
		t.Fatalf("expected one thumbnail, got %d", page.Extracted)
	}

	extraction := page.Issues[0].Extraction
	if extraction == nil {
		t.Fatal("expected extraction on boxed issue")
	}
	if extraction.ThumbnailPath != "page4/issue_1_hand.jpg" {
		t.Fatalf("unexpected thumbnail path %q", extraction.ThumbnailPath)
	}
	if _, err := os.Stat(extraction.AbsolutePath); err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}
	if page.Issues[1].Extraction != nil {
		t.Fatal("boxless issue should have no extraction")
	}

	m, err := store.Load("story-1")
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	stored, ok := m.Pages[4]
	if !ok {
		t.Fatalf("expected page 4 in manifest, got %v", m.PageNumbers())
	}
	if stored.Width != 1000 || stored.Height != 800 {
		t.Fatalf("unexpected stored dimensions %dx%d", stored.Width, stored.Height)
	}
	if stored.OriginalPath != "page4/original.jpg" {
		t.Fatalf("unexpected original path %q", stored.OriginalPath)
	}
	if _, err := os.Stat(filepath.Join(store.IssuesDir("story-1"), stored.OriginalPath)); err != nil {
		t.Fatalf("original not written: %v", err)
	}
	if len(stored.Issues) != 2 {
		t.Fatalf("expected 2 stored issues, got %d", len(stored.Issues))
	}
}

func TestRunRecordsIssuesWithoutImage(t *testing.T) {
	runner, store := newRunner(t)

	result, err := runner.Run(context.Background(), targeting.Input{
		StoryID: "story-2",
		Reports: overlappingReports(t),
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	page := result.Pages[0]
	if page.Extracted != 0 || len(page.Issues) != 2 {
		t.Fatalf("expected two issues and no thumbnails, got %+v", page)
	}
	for _, issue := range page.Issues {
		if issue.Region.PixelBox != nil {
			t.Fatalf("pixel box requires page dimensions, got %+v", issue.Region.PixelBox)
		}
	}
	m, err := store.Load("story-2")
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if m.IssueCount() != 2 {
		t.Fatalf("expected 2 issues in manifest, got %d", m.IssueCount())
	}
}

func TestRunIsolatesUnreadablePage(t *testing.T) {
	runner, store := newRunner(t)

	result, err := runner.Run(context.Background(), targeting.Input{
		StoryID: "story-3",
		Pages: []targeting.PageInput{
			{PageNumber: 1, Image: []byte("not an image")},
			{PageNumber: 2, Image: testsupport.PageImage(t, 400, 300)},
		},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Pages) != 2 {
		t.Fatalf("expected two pages, got %d", len(result.Pages))
	}
	if result.Pages[0].Error == "" {
		t.Fatal("expected page 1 to record a decode error")
	}
	if result.Pages[1].Error != "" {
		t.Fatalf("page 2 should succeed, got %q", result.Pages[1].Error)
	}
	if result.Failed() != 1 {
		t.Fatalf("expected one failed page, got %d", result.Failed())
	}
	m, err := store.Load("story-3")
	if err != nil {
		t.Fatalf("Load manifest: %v", err)
	}
	if len(m.Pages) != 2 {
		t.Fatalf("both pages should be recorded, got %v", m.PageNumbers())
	}
}

func TestRunRejectsDuplicatePages(t *testing.T) {
	runner, _ := newRunner(t)
	img := testsupport.PageImage(t, 64, 64)
	_, err := runner.Run(context.Background(), targeting.Input{
		StoryID: "story-4",
		Pages:   []targeting.PageInput{{PageNumber: 1, Image: img}, {PageNumber: 1, Image: img}},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate page 1") {
		t.Fatalf("expected duplicate page error, got %v", err)
	}
}

func TestRunRejectsInvalidStoryID(t *testing.T) {
	runner, _ := newRunner(t)
	if _, err := runner.Run(context.Background(), targeting.Input{StoryID: "../escape"}); err == nil {
		t.Fatal("expected invalid story id error")
	}
}

func TestMetricsTextfile(t *testing.T) {
	runner, _ := newRunner(t)
	if _, err := runner.Run(context.Background(), targeting.Input{
		StoryID: "story-5",
		Pages:   []targeting.PageInput{{PageNumber: 4, Image: testsupport.PageImage(t, 1000, 800)}},
		Reports: overlappingReports(t),
	}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "storyqa.prom")
	if err := runner.Metrics().WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`storyqa_issues_normalized_total{source="composition"} 1`,
		`storyqa_issues_deduplicated_total 1`,
		`storyqa_thumbnails_extracted_total{type="hand"} 1`,
		`storyqa_page_duration_seconds_count 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics missing %q:\n%s", want, text)
		}
	}
}
