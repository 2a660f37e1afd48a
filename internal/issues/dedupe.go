package issues

import (
	"sort"

	"storyqa/internal/bbox"
)

// DefaultDedupeThreshold is the IoU above which a lower-ranked issue is
// treated as a duplicate of one already kept.
const DefaultDedupeThreshold = 0.5

// Deduplicate drops spatially redundant issues. Input is sorted by severity
// and then source priority; an issue is kept unless its box overlaps a kept
// box on the same page by more than threshold. Boxless issues are always
// kept. The input slice is not modified.
func Deduplicate(list []UnifiedIssue, threshold float64) []UnifiedIssue {
	if threshold <= 0 {
		threshold = DefaultDedupeThreshold
	}
	sorted := make([]UnifiedIssue, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() < b.Severity.Rank()
		}
		return a.Source.Priority() < b.Source.Priority()
	})

	kept := make([]UnifiedIssue, 0, len(sorted))
	for _, candidate := range sorted {
		if candidate.HasBox() && dominated(candidate, kept, threshold) {
			continue
		}
		kept = append(kept, candidate)
	}
	return kept
}

func dominated(candidate UnifiedIssue, kept []UnifiedIssue, threshold float64) bool {
	for _, existing := range kept {
		if !existing.HasBox() || existing.PageNumber != candidate.PageNumber {
			continue
		}
		if bbox.IoU(*candidate.Region.BBox, *existing.Region.BBox) > threshold {
			return true
		}
	}
	return false
}

// GroupByPage splits issues by page number, preserving order within a page.
func GroupByPage(list []UnifiedIssue) map[int][]UnifiedIssue {
	grouped := make(map[int][]UnifiedIssue)
	for _, issue := range list {
		grouped[issue.PageNumber] = append(grouped[issue.PageNumber], issue)
	}
	return grouped
}
