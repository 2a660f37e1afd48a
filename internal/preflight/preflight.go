package preflight

import (
	"context"

	"storyqa/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes the local checks plus an OpenRouter reachability probe when
// any role is routed through it. Anthropic and Gemini probes need constructed
// clients and are run by the caller through CheckService.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckRunLog(ctx, cfg.Paths.RunLogPath),
	}
	results = append(results, CheckCredentials(cfg)...)

	if cfg.Models.TextProvider == config.ProviderOpenRouter {
		results = append(results, CheckLLM(ctx, "Text LLM", cfg.TextLLM()))
	}
	// Vision only needs its own probe when it resolves to a different model.
	if cfg.Models.VisionProvider == config.ProviderOpenRouter && visionUsesDistinctLLM(cfg) {
		results = append(results, CheckLLM(ctx, "Vision LLM", cfg.VisionLLM()))
	}
	return results
}

func visionUsesDistinctLLM(cfg *config.Config) bool {
	if cfg.Models.TextProvider != config.ProviderOpenRouter {
		return true
	}
	return cfg.TextLLM().Model != cfg.VisionLLM().Model
}
