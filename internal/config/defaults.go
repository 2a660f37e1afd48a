package config

const (
	defaultConfigPath          = "~/.config/storyqa/config.toml"
	defaultDataDir             = "~/.local/share/storyqa"
	defaultLogDir              = "~/.local/share/storyqa/logs"
	defaultRunLogPath          = "~/.local/share/storyqa/runs.db"
	defaultLLMBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel            = "google/gemini-2.5-flash"
	defaultLLMReferer          = "https://github.com/storyqa/storyqa"
	defaultLLMTitle            = "storyqa"
	defaultLLMRetryAttempts    = 3
	defaultAnthropicModel      = "claude-sonnet-4-5"
	defaultAnthropicMaxTokens  = 4096
	defaultGeminiTextModel     = "gemini-2.5-flash"
	defaultGeminiImageModel    = "imagen-4.0-fast-generate-001"
	defaultPreviewWidth        = 512
	defaultPreviewHeight       = 512
	defaultPreviewSteps        = 4
	defaultPreviewPromptBudget = 600
	defaultMaxVisibleFaces     = 3
	defaultThumbnailSize       = 256
	defaultMinWidthFraction    = 0.10
	defaultJPEGQuality         = 90
	defaultPadding             = 0.30
	defaultDedupeIoU           = 0.5
	defaultCharacterMatchIoU   = 0.3
	defaultPageConcurrency     = 4
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"

	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			RunLogPath: defaultRunLogPath,
		},
		Models: Models{
			TextProvider:   ProviderOpenRouter,
			VisionProvider: ProviderOpenRouter,
			ImageProvider:  ProviderGemini,
		},
		LLM: LLM{
			BaseURL:       defaultLLMBaseURL,
			Model:         defaultLLMModel,
			Referer:       defaultLLMReferer,
			Title:         defaultLLMTitle,
			RetryAttempts: defaultLLMRetryAttempts,
		},
		Anthropic: Anthropic{
			Model:     defaultAnthropicModel,
			MaxTokens: defaultAnthropicMaxTokens,
		},
		Gemini: Gemini{
			TextModel:   defaultGeminiTextModel,
			VisionModel: defaultGeminiTextModel,
			ImageModel:  defaultGeminiImageModel,
		},
		Composition: Composition{
			PreviewWidth:        defaultPreviewWidth,
			PreviewHeight:       defaultPreviewHeight,
			PreviewSteps:        defaultPreviewSteps,
			PreviewPromptBudget: defaultPreviewPromptBudget,
			MaxVisibleFaces:     defaultMaxVisibleFaces,
		},
		Extraction: Extraction{
			ThumbnailSize:    defaultThumbnailSize,
			MinWidthFraction: defaultMinWidthFraction,
			JPEGQuality:      defaultJPEGQuality,
			DefaultPadding:   defaultPadding,
			Padding:          DefaultPaddingByType(),
		},
		Issues: Issues{
			DedupeIoUThreshold:      defaultDedupeIoU,
			CharacterMatchThreshold: defaultCharacterMatchIoU,
		},
		Pipeline: Pipeline{
			PageConcurrency: defaultPageConcurrency,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

// DefaultPaddingByType returns the per-type padding fractions. Faces get the
// most surrounding context.
func DefaultPaddingByType() map[string]float64 {
	return map[string]float64{
		"face":        0.6,
		"hand":        0.5,
		"anatomy":     0.4,
		"clothing":    0.4,
		"environment": 0.25,
		"object":      0.3,
	}
}
