package config

import (
	"errors"
	"fmt"
	"sort"
)

var knownTextProviders = map[string]struct{}{
	ProviderOpenRouter: {},
	ProviderAnthropic:  {},
	ProviderGemini:     {},
}

// Validate ensures the configuration is usable. Credentials are not required
// here; stages that need a missing collaborator fail when they start.
func (c *Config) Validate() error {
	if err := c.validateModels(); err != nil {
		return err
	}
	if err := c.validateComposition(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateIssues(); err != nil {
		return err
	}
	if c.Pipeline.PageConcurrency <= 0 {
		return errors.New("pipeline.page_concurrency must be positive")
	}
	return nil
}

func (c *Config) validateModels() error {
	if _, ok := knownTextProviders[c.Models.TextProvider]; !ok {
		return fmt.Errorf("models.text_provider %q is not one of openrouter, anthropic, gemini", c.Models.TextProvider)
	}
	if _, ok := knownTextProviders[c.Models.VisionProvider]; !ok {
		return fmt.Errorf("models.vision_provider %q is not one of openrouter, anthropic, gemini", c.Models.VisionProvider)
	}
	if c.Models.ImageProvider != ProviderGemini {
		return fmt.Errorf("models.image_provider %q is not supported (use gemini)", c.Models.ImageProvider)
	}
	return nil
}

func (c *Config) validateComposition() error {
	return ensurePositiveMap(map[string]int{
		"composition.preview_width":         c.Composition.PreviewWidth,
		"composition.preview_height":        c.Composition.PreviewHeight,
		"composition.preview_steps":         c.Composition.PreviewSteps,
		"composition.preview_prompt_budget": c.Composition.PreviewPromptBudget,
		"composition.max_visible_faces":     c.Composition.MaxVisibleFaces,
	})
}

func (c *Config) validateExtraction() error {
	if c.Extraction.ThumbnailSize < 16 {
		return errors.New("extraction.thumbnail_size must be at least 16")
	}
	if c.Extraction.MinWidthFraction <= 0 || c.Extraction.MinWidthFraction > 1 {
		return errors.New("extraction.min_width_fraction must be between 0 and 1")
	}
	if c.Extraction.JPEGQuality < 1 || c.Extraction.JPEGQuality > 100 {
		return errors.New("extraction.jpeg_quality must be between 1 and 100")
	}
	keys := make([]string, 0, len(c.Extraction.Padding))
	for key := range c.Extraction.Padding {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if value := c.Extraction.Padding[key]; value < 0 || value > 5 {
			return fmt.Errorf("extraction.padding.%s must be between 0 and 5", key)
		}
	}
	return nil
}

func (c *Config) validateIssues() error {
	if c.Issues.DedupeIoUThreshold <= 0 || c.Issues.DedupeIoUThreshold > 1 {
		return errors.New("issues.dedupe_iou_threshold must be between 0 and 1")
	}
	if c.Issues.CharacterMatchThreshold <= 0 || c.Issues.CharacterMatchThreshold > 1 {
		return errors.New("issues.character_match_threshold must be between 0 and 1")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
