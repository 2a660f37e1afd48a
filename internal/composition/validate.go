package composition

import (
	"context"
	"errors"

	"storyqa/internal/logging"
	"storyqa/internal/services"
)

// ValidationResult is the outcome of one validate-and-repair pass.
// FinalScene is always a copy; the caller's scene is never modified.
type ValidationResult struct {
	Preview     *Preview     `json:"preview,omitempty"`
	Description *Description `json:"description,omitempty"`
	Analysis    *Analysis    `json:"analysis,omitempty"`
	Comparison  *Comparison  `json:"comparison,omitempty"`
	WasRepaired bool         `json:"wasRepaired"`
	FinalScene  Scene        `json:"finalScene"`
	Fixes       []Fix        `json:"fixes,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ValidateAndRepairScene previews, describes, compares, and, when any check
// failed, attempts one repair. Configuration errors and failures that leave
// nothing to compare are returned as errors; later failures are recorded on
// the result and the original scene is kept.
func (v *Validator) ValidateAndRepairScene(ctx context.Context, scene Scene) (*ValidationResult, error) {
	result := &ValidationResult{FinalScene: scene.Clone()}
	logger := logging.WithContext(services.WithStage(ctx, "composition"), v.logger)

	if v.images == nil {
		return result, services.Wrap(services.ErrConfiguration, "composition", "validate scene", "no image generator configured", nil)
	}
	preview, err := v.GeneratePreview(ctx, scene)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Preview = preview

	desc, err := v.Describe(ctx, preview.Image, preview.MIMEType)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Description = desc

	if len(scene.Characters) > 0 && desc.Error == "" && len(desc.Figures) > 0 {
		analysis, err := v.AnalyzeWithContext(ctx, preview.Image, preview.MIMEType, scene, desc)
		if err != nil {
			if errors.Is(err, services.ErrConfiguration) {
				return result, err
			}
			logging.WarnWithContext(logger, "context analysis failed", "analyze_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "guards use scene facing instead of observed figures"),
			)
		} else {
			result.Analysis = analysis
		}
	}

	comparison, err := v.Compare(ctx, scene, desc, result.Analysis)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}
	result.Comparison = comparison
	if comparison.Pass {
		logger.Info("scene passed composition checks", logging.Args(logging.DecisionAttrs("scene_repair", "skipped", "all checks passed")...)...)
		return result, nil
	}

	repair, err := v.Repair(ctx, scene, desc, comparison)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			return result, err
		}
		result.Error = err.Error()
		logging.WarnWithContext(logger, "scene repair failed", "repair_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "original scene kept"),
		)
		return result, nil
	}
	if repair.Scene == nil {
		result.Error = repair.Error
		return result, nil
	}
	result.WasRepaired = true
	result.FinalScene = *repair.Scene
	result.Fixes = repair.Fixes
	logger.Info("scene repaired",
		logging.Args(append(logging.DecisionAttrs("scene_repair", "applied", "composition checks failed"),
			logging.Int("failed_checks", len(comparison.Failures())),
			logging.Int("fixes", len(repair.Fixes)),
			logging.Bool("critical", comparison.Critical()),
		)...)...,
	)
	return result, nil
}
