package composition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/services"
	"storyqa/internal/services/llm"
)

// CheckResult is the outcome of one check. Evaluated is false when neither
// the model nor a local guard judged the check; such checks pass.
type CheckResult struct {
	ID        CheckID         `json:"id"`
	Pass      bool            `json:"pass"`
	Severity  issues.Severity `json:"severity,omitempty"`
	Requested string          `json:"requested,omitempty"`
	Observed  string          `json:"observed,omitempty"`
	Evaluated bool            `json:"evaluated"`
	Forced    bool            `json:"forced,omitempty"`
}

// Comparison holds all checks in checklist order.
type Comparison struct {
	Checks []CheckResult `json:"checks"`
	Pass   bool          `json:"pass"`
	Error  string        `json:"error,omitempty"`
}

// Failures returns the failed checks.
func (c *Comparison) Failures() []CheckResult {
	if c == nil {
		return nil
	}
	var failed []CheckResult
	for _, check := range c.Checks {
		if !check.Pass {
			failed = append(failed, check)
		}
	}
	return failed
}

// Critical reports whether any failed check is critical.
func (c *Comparison) Critical() bool {
	for _, check := range c.Failures() {
		if check.Severity == issues.SeverityCritical {
			return true
		}
	}
	return false
}

type modelCheck struct {
	ID        string `json:"id"`
	Pass      *bool  `json:"pass"`
	Severity  string `json:"severity"`
	Requested string `json:"requested"`
	Observed  string `json:"observed"`
}

type modelComparison struct {
	Checks []modelCheck `json:"checks"`
}

// Compare runs the checklist against the description. Local guards are
// applied whether or not the model output parses.
func (v *Validator) Compare(ctx context.Context, scene Scene, desc *Description, analysis *Analysis) (*Comparison, error) {
	if v.text == nil {
		return nil, services.Wrap(services.ErrConfiguration, "composition", "compare", "no text model configured", nil)
	}
	prompt, err := comparePrompt(scene, desc, analysis)
	if err != nil {
		return nil, err
	}
	text, err := v.text.CompleteText(ctx, compareSystemPrompt, prompt)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "compare", "text model call failed", err)
	}

	logger := logging.WithContext(ctx, v.logger)
	var parsed modelComparison
	parseErr := llm.DecodeObject(text, &parsed)
	if parseErr != nil {
		logging.WarnWithContext(logger, "comparison unparseable", "compare_parse_failed",
			logging.Error(parseErr),
			logging.String(logging.FieldImpact, "scene treated as passing apart from local guards"),
			logging.String(logging.FieldErrorHint, "inspect the text model output"),
		)
		parsed = modelComparison{}
	}

	comparison := mergeChecks(parsed.Checks, logger)
	applyGuards(comparison, scene, desc, analysis, v.opts.MaxVisibleFaces)
	comparison.Pass = len(comparison.Failures()) == 0
	if parseErr != nil {
		comparison.Error = parseErr.Error()
	}
	return comparison, nil
}

func mergeChecks(returned []modelCheck, logger *slog.Logger) *Comparison {
	byID := make(map[CheckID]modelCheck, len(returned))
	for _, mc := range returned {
		id := CheckID(strings.ToLower(strings.TrimSpace(mc.ID)))
		if !knownCheck(id) {
			logger.Debug("ignoring unknown check", logging.String("check_id", mc.ID))
			continue
		}
		byID[id] = mc
	}
	comparison := &Comparison{Checks: make([]CheckResult, 0, len(Checks))}
	for _, def := range Checks {
		mc, ok := byID[def.ID]
		if !ok || mc.Pass == nil {
			comparison.Checks = append(comparison.Checks, CheckResult{ID: def.ID, Pass: true})
			continue
		}
		result := CheckResult{
			ID:        def.ID,
			Pass:      *mc.Pass,
			Requested: strings.TrimSpace(mc.Requested),
			Observed:  strings.TrimSpace(mc.Observed),
			Evaluated: true,
		}
		if !result.Pass {
			result.Severity = issues.ParseSeverity(mc.Severity)
		}
		comparison.Checks = append(comparison.Checks, result)
	}
	return comparison
}

func comparePrompt(scene Scene, desc *Description, analysis *Analysis) (string, error) {
	sceneJSON, err := json.MarshalIndent(scene, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal scene: %w", err)
	}
	var b strings.Builder
	b.WriteString("Scene specification:\n")
	b.Write(sceneJSON)
	b.WriteString("\n\nGeometric description of the draft:\n")
	if desc == nil || desc.Error != "" {
		b.WriteString("(unavailable)")
	} else {
		data, err := json.MarshalIndent(desc, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal description: %w", err)
		}
		b.Write(data)
	}
	if analysis != nil && analysis.Error == "" && len(analysis.Figures) > 0 {
		data, err := json.MarshalIndent(analysis, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal analysis: %w", err)
		}
		b.WriteString("\n\nFigure to character mapping:\n")
		b.Write(data)
	}
	b.WriteString("\n\nChecks:\n")
	for _, def := range Checks {
		fmt.Fprintf(&b, "- %s: %s\n", def.ID, def.Question)
	}
	b.WriteString(`
Respond with JSON only:
{"checks":[{"id":"<check id>","pass":true,"severity":"critical|major|minor","requested":"","observed":""}]}`)
	return b.String(), nil
}
