package issues

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"storyqa/internal/bbox"
	"storyqa/internal/logging"
)

// PageContext is what the normalizer knows about a rendered page. Zero
// dimensions leave pixel boxes unset; a nil Characters disables backfill.
type PageContext struct {
	Width      int
	Height     int
	Characters *CharacterIndex
}

// Normalizer converts upstream reports into UnifiedIssue values. It keeps
// per page and source counters for IDs and is not safe for concurrent use.
type Normalizer struct {
	logger   *slog.Logger
	mapper   *TypeMapper
	pages    map[int]PageContext
	counters map[string]int
}

// NewNormalizer builds a normalizer. A nil mapper uses the built-in table.
func NewNormalizer(logger *slog.Logger, mapper *TypeMapper, pages map[int]PageContext) *Normalizer {
	if mapper == nil {
		mapper = DefaultTypeMapper()
	}
	if pages == nil {
		pages = map[int]PageContext{}
	}
	return &Normalizer{
		logger:   logging.NewComponentLogger(logger, "issue-normalizer"),
		mapper:   mapper,
		pages:    pages,
		counters: make(map[string]int),
	}
}

// Normalize dispatches on the report variant. It never fails; entries that
// cannot be placed on a valid page are dropped with a warning.
func (n *Normalizer) Normalize(report Report) []UnifiedIssue {
	switch r := report.(type) {
	case *CompositionReport:
		return n.NormalizeComposition(r)
	case *IncrementalReport:
		return n.NormalizeIncremental(r)
	case *FinalReport:
		return n.NormalizeFinal(r)
	default:
		return nil
	}
}

// NormalizeComposition converts fix targets and identity drift entries.
func (n *Normalizer) NormalizeComposition(report *CompositionReport) []UnifiedIssue {
	if report == nil || !n.validPage(SourceComposition, report.PageNumber) {
		return nil
	}
	page := report.PageNumber
	out := make([]UnifiedIssue, 0, len(report.FixTargets)+len(report.IdentitySync))
	for _, target := range report.FixTargets {
		issueType := n.mapper.Map(target.Element)
		issue := n.newIssue(SourceComposition, page, issueType, target.Severity, target.Issue, target.FixInstruction)
		issue.AffectedCharacter = strings.TrimSpace(target.Character)
		n.setRegion(&issue, n.parseBox(SourceComposition, page, "bounds", target.Bounds))
		out = append(out, issue)
	}
	for _, entry := range report.IdentitySync {
		issue := n.newIssue(SourceComposition, page, TypeFace, entry.Severity, entry.Issue, entry.FixInstruction)
		issue.AffectedCharacter = strings.TrimSpace(entry.Character)
		box := n.parseBox(SourceComposition, page, "identity_sync.bounds", entry.Bounds)
		if box == nil {
			box = n.characterBox(page, issue.AffectedCharacter, TypeFace)
		}
		n.setRegion(&issue, box)
		out = append(out, issue)
	}
	return out
}

// NormalizeIncremental converts cross-page consistency issues, backfilling
// missing regions from the page's character index.
func (n *Normalizer) NormalizeIncremental(report *IncrementalReport) []UnifiedIssue {
	if report == nil || !n.validPage(SourceIncremental, report.PageNumber) {
		return nil
	}
	page := report.PageNumber
	out := make([]UnifiedIssue, 0, len(report.Issues))
	for _, raw := range report.Issues {
		label := raw.Type
		if strings.TrimSpace(label) == "" {
			label = raw.Category
		}
		issueType := n.mapper.Map(label)
		fix := raw.FixInstruction
		var region json.RawMessage
		if raw.FixTarget != nil {
			region = raw.FixTarget.Region
			if strings.TrimSpace(fix) == "" {
				fix = raw.FixTarget.Instruction
			}
		}
		issue := n.newIssue(SourceIncremental, page, issueType, raw.Severity, raw.Description, fix)
		issue.AffectedCharacter = strings.TrimSpace(raw.AffectedCharacter)
		box := n.parseBox(SourceIncremental, page, "fixTarget.region", region)
		if box == nil && issue.AffectedCharacter != "" {
			box = n.characterBox(page, issue.AffectedCharacter, issueType)
		}
		n.setRegion(&issue, box)
		out = append(out, issue)
	}
	return out
}

// NormalizeFinal converts whole-book consistency issues across all pages.
func (n *Normalizer) NormalizeFinal(report *FinalReport) []UnifiedIssue {
	if report == nil {
		return nil
	}
	var out []UnifiedIssue
	for _, pageEntry := range report.PagesToFix {
		if !n.validPage(SourceFinal, pageEntry.PageNumber) {
			continue
		}
		page := pageEntry.PageNumber
		for _, raw := range pageEntry.Issues {
			issueType := n.mapper.Map(raw.Type)
			fix := raw.FixInstruction
			var region json.RawMessage
			if raw.FixTarget != nil {
				region = raw.FixTarget.BBox
				if strings.TrimSpace(fix) == "" {
					fix = raw.FixTarget.Instruction
				}
			}
			issue := n.newIssue(SourceFinal, page, issueType, raw.Severity, raw.Description, fix)
			issue.AffectedCharacter = strings.TrimSpace(raw.Character)
			n.setRegion(&issue, n.parseBox(SourceFinal, page, "fixTarget.bbox", region))
			out = append(out, issue)
		}
	}
	return out
}

func (n *Normalizer) newIssue(source Source, page int, issueType Type, severity, description, fix string) UnifiedIssue {
	key := fmt.Sprintf("%s-p%d", source, page)
	n.counters[key]++
	description = strings.TrimSpace(description)
	if description == "" {
		description = fmt.Sprintf("Unspecified %s issue reported by the %s check", issueType, source)
	}
	fix = strings.TrimSpace(fix)
	if fix == "" {
		fix = fmt.Sprintf("Redraw the %s in this region so it matches the scene and character references", issueType)
	}
	return UnifiedIssue{
		ID:             fmt.Sprintf("%s-%d", key, n.counters[key]),
		Source:         source,
		PageNumber:     page,
		Type:           issueType,
		Severity:       ParseSeverity(severity),
		Description:    description,
		FixInstruction: fix,
		RepairStatus:   StatusPending,
		RepairAttempts: []RepairAttempt{},
	}
}

func (n *Normalizer) validPage(source Source, page int) bool {
	if page >= 1 {
		return true
	}
	logging.WarnWithContext(n.logger, "report entry dropped", "invalid_page_number",
		logging.Source(string(source)),
		logging.Page(page),
		logging.String(logging.FieldImpact, "issues for this entry are not delivered to repair"),
		logging.String(logging.FieldErrorHint, "page numbers are 1-based"),
	)
	return false
}

func (n *Normalizer) parseBox(source Source, page int, field string, raw json.RawMessage) *bbox.Normalized {
	if bbox.IsAbsent(raw) {
		return nil
	}
	box, err := bbox.ParseJSON(raw)
	if err != nil {
		logging.WarnWithContext(n.logger, "issue box discarded", "malformed_bbox",
			logging.Source(string(source)),
			logging.Page(page),
			logging.String("field", field),
			logging.Error(err),
			logging.String(logging.FieldImpact, "issue has no region unless a character box is available"),
			logging.String(logging.FieldErrorHint, "evaluators must emit [yMin,xMin,yMax,xMax] in 0..1"),
		)
		return nil
	}
	return &box
}

// characterBox prefers the face box for face issues and the body box
// otherwise, falling back to the face box.
func (n *Normalizer) characterBox(page int, character string, issueType Type) *bbox.Normalized {
	ctx, ok := n.pages[page]
	if !ok || character == "" {
		return nil
	}
	boxes, ok := ctx.Characters.Lookup(character)
	if !ok {
		n.logger.Debug("no character box for backfill",
			logging.Page(page),
			logging.String("character", character),
		)
		return nil
	}
	if issueType == TypeFace && boxes.FaceBox != nil {
		return boxes.FaceBox
	}
	if boxes.BodyBox != nil {
		return boxes.BodyBox
	}
	return boxes.FaceBox
}

func (n *Normalizer) setRegion(issue *UnifiedIssue, box *bbox.Normalized) {
	if box == nil {
		return
	}
	copied := *box
	issue.Region.BBox = &copied
	ctx := n.pages[issue.PageNumber]
	if ctx.Width > 0 && ctx.Height > 0 {
		px := bbox.ToPixelBox(copied, ctx.Width, ctx.Height)
		issue.Region.PixelBox = &px
	}
}
