package main

import (
	"context"
	"fmt"

	"storyqa/internal/composition"
	"storyqa/internal/config"
	"storyqa/internal/services"
	"storyqa/internal/services/claude"
	"storyqa/internal/services/gemini"
	"storyqa/internal/services/llm"
)

// textVisionModel is what every backend offers for prompts.
type textVisionModel interface {
	composition.TextModel
	composition.VisionModel
	HealthCheck(ctx context.Context) error
}

// providerSet holds the backends selected by [models]. A provider serving
// several roles is constructed once. The image generator is only built when
// requested so that commands without rendering need no image credentials.
type providerSet struct {
	text   textVisionModel
	vision textVisionModel
	images composition.ImageGenerator

	gemini *gemini.Client
	claude map[string]*claude.Client
}

func buildProviders(ctx context.Context, cfg *config.Config, withImages bool) (*providerSet, error) {
	set := &providerSet{claude: map[string]*claude.Client{}}

	text, err := set.model(ctx, cfg, cfg.Models.TextProvider, false)
	if err != nil {
		return nil, fmt.Errorf("text provider: %w", err)
	}
	vision, err := set.model(ctx, cfg, cfg.Models.VisionProvider, true)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	set.text, set.vision = text, vision
	if !withImages {
		return set, nil
	}

	switch cfg.Models.ImageProvider {
	case config.ProviderGemini:
		client, err := set.geminiClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("image provider: %w", err)
		}
		set.images = client
	default:
		return nil, services.Wrap(services.ErrConfiguration, "cli", "build providers",
			fmt.Sprintf("image provider %q cannot generate images", cfg.Models.ImageProvider), nil)
	}
	return set, nil
}

func (p *providerSet) model(ctx context.Context, cfg *config.Config, provider string, vision bool) (textVisionModel, error) {
	switch provider {
	case config.ProviderOpenRouter:
		llmCfg := cfg.TextLLM()
		if vision {
			llmCfg = cfg.VisionLLM()
		}
		return newLLMClient(llmCfg), nil
	case config.ProviderAnthropic:
		model := cfg.Anthropic.Model
		if vision && cfg.Anthropic.VisionModel != "" {
			model = cfg.Anthropic.VisionModel
		}
		if client, ok := p.claude[model]; ok {
			return client, nil
		}
		client := claude.NewClient(claude.Config{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     model,
			MaxTokens: cfg.Anthropic.MaxTokens,
		})
		p.claude[model] = client
		return client, nil
	case config.ProviderGemini:
		return p.geminiClient(ctx, cfg)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "cli", "build providers", fmt.Sprintf("unknown provider %q", provider), nil)
	}
}

func (p *providerSet) geminiClient(ctx context.Context, cfg *config.Config) (*gemini.Client, error) {
	if p.gemini != nil {
		return p.gemini, nil
	}
	client, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.Gemini.APIKey,
		TextModel:   cfg.Gemini.TextModel,
		VisionModel: cfg.Gemini.VisionModel,
		ImageModel:  cfg.Gemini.ImageModel,
	})
	if err != nil {
		return nil, err
	}
	p.gemini = client
	return client, nil
}

func newLLMClient(cfg config.LLMConfig) *llm.Client {
	opts := []llm.Option{}
	if cfg.RetryAttempts > 0 {
		opts = append(opts, llm.WithRetryMaxAttempts(cfg.RetryAttempts))
	}
	return llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, opts...)
}
