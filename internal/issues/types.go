package issues

import (
	"strings"
	"time"

	"storyqa/internal/bbox"
)

// Source names the evaluator that reported an issue.
type Source string

const (
	SourceComposition Source = "composition"
	SourceIncremental Source = "incremental"
	SourceFinal       Source = "final"
)

// Priority orders sources for dedup; lower sorts first.
func (s Source) Priority() int {
	switch s {
	case SourceComposition:
		return 0
	case SourceIncremental:
		return 1
	case SourceFinal:
		return 2
	default:
		return 3
	}
}

// Type is the closed set of issue categories.
type Type string

const (
	TypeFace        Type = "face"
	TypeHand        Type = "hand"
	TypeAnatomy     Type = "anatomy"
	TypeClothing    Type = "clothing"
	TypeObject      Type = "object"
	TypeEnvironment Type = "environment"
)

// AllTypes lists every issue type.
var AllTypes = []Type{TypeFace, TypeHand, TypeAnatomy, TypeClothing, TypeObject, TypeEnvironment}

// Valid reports whether t is one of the closed set.
func (t Type) Valid() bool {
	for _, known := range AllTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Severity ranks how badly an issue hurts the page.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Rank orders severities for sorting: critical < major < minor.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityMajor:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 1
	}
}

// ParseSeverity maps free text onto a severity, defaulting to major.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "high", "severe", "blocker":
		return SeverityCritical
	case "minor", "low", "cosmetic":
		return SeverityMinor
	default:
		return SeverityMajor
	}
}

// Region locates an issue on the page. Both fields nil means the issue is
// not localized.
type Region struct {
	BBox     *bbox.Normalized `json:"bbox"`
	PixelBox *bbox.PixelBox   `json:"pixelBox"`
}

// Extraction records the thumbnail written for an issue.
type Extraction struct {
	ThumbnailPath string        `json:"thumbnailPath"`
	AbsolutePath  string        `json:"absolutePath"`
	PaddedBox     bbox.PixelBox `json:"paddedBox"`
}

// RepairAttempt is one entry of the append-only repair log.
type RepairAttempt struct {
	Attempt int          `json:"attempt"`
	At      time.Time    `json:"at"`
	Status  RepairStatus `json:"status"`
	Note    string       `json:"note,omitempty"`
}

// UnifiedIssue is the source-agnostic record of one visual defect.
type UnifiedIssue struct {
	ID                string          `json:"id"`
	Source            Source          `json:"source"`
	PageNumber        int             `json:"pageNumber"`
	Region            Region          `json:"region"`
	Type              Type            `json:"type"`
	Severity          Severity        `json:"severity"`
	Description       string          `json:"description"`
	FixInstruction    string          `json:"fixInstruction"`
	AffectedCharacter string          `json:"affectedCharacter,omitempty"`
	RepairStatus      RepairStatus    `json:"repairStatus"`
	RepairAttempts    []RepairAttempt `json:"repairAttempts"`
	Extraction        *Extraction     `json:"extraction,omitempty"`
}

// HasBox reports whether the issue carries a normalized box.
func (u UnifiedIssue) HasBox() bool {
	return u.Region.BBox != nil
}
