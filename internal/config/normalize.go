package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeModels()
	c.normalizeLLM()
	c.normalizeAnthropic()
	c.normalizeGemini()
	c.normalizeComposition()
	c.normalizeExtraction()
	if err := c.normalizeIssues(); err != nil {
		return err
	}
	if err := c.normalizePipeline(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.RunLogPath, err = expandPath(c.Paths.RunLogPath); err != nil {
		return fmt.Errorf("paths.run_log_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeModels() {
	c.Models.TextProvider = normalizeProvider(c.Models.TextProvider, ProviderOpenRouter)
	c.Models.VisionProvider = normalizeProvider(c.Models.VisionProvider, ProviderOpenRouter)
	c.Models.ImageProvider = normalizeProvider(c.Models.ImageProvider, ProviderGemini)
}

func normalizeProvider(value, fallback string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return fallback
	}
	return value
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = lookupEnv("OPENROUTER_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.VisionModel = strings.TrimSpace(c.LLM.VisionModel)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds < 0 {
		c.LLM.TimeoutSeconds = 0
	}
	if c.LLM.RetryAttempts <= 0 {
		c.LLM.RetryAttempts = defaultLLMRetryAttempts
	}
}

func (c *Config) normalizeAnthropic() {
	c.Anthropic.APIKey = strings.TrimSpace(c.Anthropic.APIKey)
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = lookupEnv("ANTHROPIC_API_KEY")
	}
	c.Anthropic.Model = strings.TrimSpace(c.Anthropic.Model)
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = defaultAnthropicModel
	}
	c.Anthropic.VisionModel = strings.TrimSpace(c.Anthropic.VisionModel)
	if c.Anthropic.VisionModel == "" {
		c.Anthropic.VisionModel = c.Anthropic.Model
	}
	if c.Anthropic.MaxTokens <= 0 {
		c.Anthropic.MaxTokens = defaultAnthropicMaxTokens
	}
}

func (c *Config) normalizeGemini() {
	c.Gemini.APIKey = strings.TrimSpace(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = lookupEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	c.Gemini.TextModel = strings.TrimSpace(c.Gemini.TextModel)
	if c.Gemini.TextModel == "" {
		c.Gemini.TextModel = defaultGeminiTextModel
	}
	c.Gemini.VisionModel = strings.TrimSpace(c.Gemini.VisionModel)
	if c.Gemini.VisionModel == "" {
		c.Gemini.VisionModel = c.Gemini.TextModel
	}
	c.Gemini.ImageModel = strings.TrimSpace(c.Gemini.ImageModel)
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = defaultGeminiImageModel
	}
}

func (c *Config) normalizeComposition() {
	if c.Composition.PreviewWidth <= 0 {
		c.Composition.PreviewWidth = defaultPreviewWidth
	}
	if c.Composition.PreviewHeight <= 0 {
		c.Composition.PreviewHeight = defaultPreviewHeight
	}
	if c.Composition.PreviewSteps <= 0 {
		c.Composition.PreviewSteps = defaultPreviewSteps
	}
	if c.Composition.PreviewPromptBudget <= 0 {
		c.Composition.PreviewPromptBudget = defaultPreviewPromptBudget
	}
	if c.Composition.MaxVisibleFaces <= 0 {
		c.Composition.MaxVisibleFaces = defaultMaxVisibleFaces
	}
}

func (c *Config) normalizeExtraction() {
	if c.Extraction.ThumbnailSize <= 0 {
		c.Extraction.ThumbnailSize = defaultThumbnailSize
	}
	if c.Extraction.MinWidthFraction <= 0 {
		c.Extraction.MinWidthFraction = defaultMinWidthFraction
	}
	if c.Extraction.JPEGQuality <= 0 {
		c.Extraction.JPEGQuality = defaultJPEGQuality
	}
	if c.Extraction.DefaultPadding <= 0 {
		c.Extraction.DefaultPadding = defaultPadding
	}
	padding := DefaultPaddingByType()
	for key, value := range c.Extraction.Padding {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		padding[key] = value
	}
	c.Extraction.Padding = padding
}

func (c *Config) normalizeIssues() error {
	if c.Issues.DedupeIoUThreshold == 0 {
		c.Issues.DedupeIoUThreshold = defaultDedupeIoU
	}
	if c.Issues.CharacterMatchThreshold == 0 {
		c.Issues.CharacterMatchThreshold = defaultCharacterMatchIoU
	}
	var err error
	if c.Issues.TypeGlossaryPath, err = expandPath(strings.TrimSpace(c.Issues.TypeGlossaryPath)); err != nil {
		return fmt.Errorf("issues.type_glossary_path: %w", err)
	}
	return nil
}

func (c *Config) normalizePipeline() error {
	if c.Pipeline.PageConcurrency <= 0 {
		c.Pipeline.PageConcurrency = defaultPageConcurrency
	}
	var err error
	if c.Pipeline.MetricsPath, err = expandPath(strings.TrimSpace(c.Pipeline.MetricsPath)); err != nil {
		return fmt.Errorf("pipeline.metrics_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
