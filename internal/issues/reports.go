package issues

import (
	"encoding/json"
	"fmt"
)

// Report is one of the three upstream report shapes. The set is closed:
// *CompositionReport, *IncrementalReport, and *FinalReport.
type Report interface {
	Source() Source
	isReport()
}

// CompositionReport is emitted by the composition-quality evaluator for one page.
type CompositionReport struct {
	PageNumber   int                    `json:"pageNumber"`
	FixTargets   []CompositionFixTarget `json:"fixTargets"`
	IdentitySync []IdentitySyncEntry    `json:"identity_sync"`
}

// CompositionFixTarget is a located composition defect. Element is the
// evaluator's free-text category.
type CompositionFixTarget struct {
	Element        string          `json:"element"`
	Issue          string          `json:"issue"`
	Severity       string          `json:"severity"`
	Bounds         json.RawMessage `json:"bounds,omitempty"`
	FixInstruction string          `json:"fixInstruction"`
	Character      string          `json:"character,omitempty"`
}

// IdentitySyncEntry flags a character whose face drifted from the reference.
type IdentitySyncEntry struct {
	Character      string          `json:"character"`
	Issue          string          `json:"issue"`
	Severity       string          `json:"severity"`
	Bounds         json.RawMessage `json:"bounds,omitempty"`
	FixInstruction string          `json:"fixInstruction"`
}

// IncrementalReport is emitted by the cross-page consistency check for one page.
type IncrementalReport struct {
	PageNumber int                `json:"pageNumber"`
	Issues     []IncrementalIssue `json:"issues"`
}

// IncrementalIssue may omit its region; the normalizer backfills it from the
// page's character boxes when AffectedCharacter is known.
type IncrementalIssue struct {
	Type              string                `json:"type"`
	Category          string                `json:"category,omitempty"`
	Description       string                `json:"description"`
	Severity          string                `json:"severity"`
	AffectedCharacter string                `json:"affectedCharacter,omitempty"`
	FixInstruction    string                `json:"fixInstruction,omitempty"`
	FixTarget         *IncrementalFixTarget `json:"fixTarget,omitempty"`
}

// IncrementalFixTarget carries the optional region and repair hint.
type IncrementalFixTarget struct {
	Region      json.RawMessage `json:"region,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
}

// FinalReport is emitted once per book by the whole-book consistency check.
type FinalReport struct {
	PagesToFix []FinalPage `json:"pagesToFix"`
}

// FinalPage groups final-check issues for one page.
type FinalPage struct {
	PageNumber int          `json:"pageNumber"`
	Issues     []FinalIssue `json:"issues"`
}

// FinalIssue takes its region from the fix target.
type FinalIssue struct {
	Type           string          `json:"type"`
	Description    string          `json:"description"`
	Severity       string          `json:"severity"`
	Character      string          `json:"character,omitempty"`
	FixInstruction string          `json:"fixInstruction,omitempty"`
	FixTarget      *FinalFixTarget `json:"fixTarget,omitempty"`
}

// FinalFixTarget carries the region and repair hint.
type FinalFixTarget struct {
	BBox        json.RawMessage `json:"bbox,omitempty"`
	Instruction string          `json:"instruction,omitempty"`
}

func (*CompositionReport) Source() Source { return SourceComposition }
func (*IncrementalReport) Source() Source { return SourceIncremental }
func (*FinalReport) Source() Source       { return SourceFinal }

func (*CompositionReport) isReport() {}
func (*IncrementalReport) isReport() {}
func (*FinalReport) isReport()       {}

// DecodeReport decodes JSON for the report shape that source emits.
func DecodeReport(source Source, data []byte) (Report, error) {
	var report Report
	switch source {
	case SourceComposition:
		report = &CompositionReport{}
	case SourceIncremental:
		report = &IncrementalReport{}
	case SourceFinal:
		report = &FinalReport{}
	default:
		return nil, fmt.Errorf("decode report: unknown source %q", source)
	}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("decode %s report: %w", source, err)
	}
	return report, nil
}
