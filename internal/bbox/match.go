package bbox

import "sort"

// Match pairs an index on the left with an index on the right.
type Match struct {
	Left  int
	Right int
	IoU   float64
}

// MatchByIoU joins two detection sets that share no common key. Pairs are
// assigned one-to-one, best overlap first; a pair qualifies when its IoU is at
// least threshold. Items whose key returns ok=false never match.
func MatchByIoU[L, R any](left []L, right []R, leftKey func(L) (Normalized, bool), rightKey func(R) (Normalized, bool), threshold float64) []Match {
	rightBoxes := make([]*Normalized, len(right))
	for j, item := range right {
		if box, ok := rightKey(item); ok {
			b := box
			rightBoxes[j] = &b
		}
	}

	var candidates []Match
	for i, item := range left {
		box, ok := leftKey(item)
		if !ok {
			continue
		}
		for j, other := range rightBoxes {
			if other == nil {
				continue
			}
			if iou := IoU(box, *other); iou > 0 && iou >= threshold {
				candidates = append(candidates, Match{Left: i, Right: j, IoU: iou})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].IoU > candidates[b].IoU
	})

	usedLeft := make(map[int]bool, len(left))
	usedRight := make(map[int]bool, len(right))
	matches := make([]Match, 0, min(len(left), len(right)))
	for _, c := range candidates {
		if usedLeft[c.Left] || usedRight[c.Right] {
			continue
		}
		usedLeft[c.Left] = true
		usedRight[c.Right] = true
		matches = append(matches, c)
	}
	sort.Slice(matches, func(a, b int) bool { return matches[a].Left < matches[b].Left })
	return matches
}
