package composition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storyqa/internal/logging"
	"storyqa/internal/services"
	"storyqa/internal/services/llm"
)

// Fix is one change the repairer made to the scene.
type Fix struct {
	CheckID CheckID `json:"checkId"`
	Change  string  `json:"change"`
}

// UnmarshalJSON accepts either the object form or a bare description of
// the change.
func (f *Fix) UnmarshalJSON(data []byte) error {
	var change string
	if err := json.Unmarshal(data, &change); err == nil {
		*f = Fix{Change: change}
		return nil
	}
	type plain Fix
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*f = Fix(obj)
	return nil
}

// RepairResult is the repairer's answer. Scene is nil, and Error set, when
// the answer could not be used.
type RepairResult struct {
	Fixes []Fix  `json:"fixes"`
	Scene *Scene `json:"correctedScene,omitempty"`
	Error string `json:"error,omitempty"`
}

var (
	errEmptyCorrection   = errors.New("corrected scene missing or empty")
	errPartialCorrection = errors.New("corrected scene is incomplete")
)

// Repair asks the text model for a corrected scene. The input scene is
// never modified.
func (v *Validator) Repair(ctx context.Context, scene Scene, desc *Description, comparison *Comparison) (*RepairResult, error) {
	if v.text == nil {
		return nil, services.Wrap(services.ErrConfiguration, "composition", "repair", "no text model configured", nil)
	}
	prompt, err := repairPrompt(scene, desc, comparison)
	if err != nil {
		return nil, err
	}
	text, err := v.text.CompleteText(ctx, repairSystemPrompt, prompt)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "repair", "text model call failed", err)
	}

	var parsed RepairResult
	if err := llm.DecodeObject(text, &parsed); err != nil {
		return v.abandonRepair(ctx, err), nil
	}
	if parsed.Scene == nil || parsed.Scene.Empty() {
		return v.abandonRepair(ctx, errEmptyCorrection), nil
	}
	if err := checkCorrectionComplete(scene, *parsed.Scene); err != nil {
		return v.abandonRepair(ctx, err), nil
	}
	corrected := parsed.Scene.Clone()
	fixes := make([]Fix, 0, len(parsed.Fixes))
	for _, f := range parsed.Fixes {
		if strings.TrimSpace(f.Change) == "" {
			continue
		}
		f.CheckID = CheckID(strings.ToLower(strings.TrimSpace(string(f.CheckID))))
		fixes = append(fixes, f)
	}
	return &RepairResult{Fixes: fixes, Scene: &corrected}, nil
}

// checkCorrectionComplete rejects a correction that drops a character or
// blanks the location of the input scene.
func checkCorrectionComplete(original, corrected Scene) error {
	if strings.TrimSpace(original.Location) != "" && strings.TrimSpace(corrected.Location) == "" {
		return fmt.Errorf("%w: location removed", errPartialCorrection)
	}
	kept := make(map[string]bool, len(corrected.Characters))
	for _, c := range corrected.Characters {
		kept[strings.ToLower(strings.TrimSpace(c.Name))] = true
	}
	var missing []string
	for _, c := range original.Characters {
		name := strings.TrimSpace(c.Name)
		if name != "" && !kept[strings.ToLower(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: characters dropped: %s", errPartialCorrection, strings.Join(missing, ", "))
	}
	return nil
}

func (v *Validator) abandonRepair(ctx context.Context, err error) *RepairResult {
	logging.WarnWithContext(logging.WithContext(ctx, v.logger), "scene repair abandoned", "repair_parse_failed",
		logging.Error(err),
		logging.String(logging.FieldImpact, "original scene kept"),
		logging.String(logging.FieldErrorHint, "inspect the text model output"),
	)
	return &RepairResult{Error: err.Error()}
}

type repairIssue struct {
	Check     CheckID `json:"check"`
	Severity  string  `json:"severity"`
	Requested string  `json:"requested,omitempty"`
	Observed  string  `json:"observed,omitempty"`
}

func repairPrompt(scene Scene, desc *Description, comparison *Comparison) (string, error) {
	failures := comparison.Failures()
	problems := make([]repairIssue, 0, len(failures))
	for _, f := range failures {
		problems = append(problems, repairIssue{Check: f.ID, Severity: string(f.Severity), Requested: f.Requested, Observed: f.Observed})
	}
	payload := map[string]any{
		"scene":  scene,
		"issues": problems,
	}
	if desc != nil && desc.Error == "" {
		payload["draftDescription"] = desc
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal repair request: %w", err)
	}
	return string(data) + "\n\nRespond with JSON only:\n" + repairResponseShape, nil
}
