package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	RunLogPath string `toml:"run_log_path"`
}

// LLM contains OpenRouter connection settings. The same endpoint serves text
// and vision calls; VisionModel overrides Model for image calls.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VisionModel    string `toml:"vision_model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryAttempts  int    `toml:"retry_attempts"`
}

// Anthropic contains Claude Messages API settings.
type Anthropic struct {
	APIKey      string `toml:"api_key"`
	Model       string `toml:"model"`
	VisionModel string `toml:"vision_model"`
	MaxTokens   int    `toml:"max_tokens"`
}

// Gemini contains Google GenAI settings for text, vision, and image models.
type Gemini struct {
	APIKey      string `toml:"api_key"`
	TextModel   string `toml:"text_model"`
	VisionModel string `toml:"vision_model"`
	ImageModel  string `toml:"image_model"`
}

// Models selects which provider backs each model role.
type Models struct {
	TextProvider   string `toml:"text_provider"`
	VisionProvider string `toml:"vision_provider"`
	ImageProvider  string `toml:"image_provider"`
}

// Composition contains settings for the preview validate-and-repair loop.
type Composition struct {
	PreviewWidth        int `toml:"preview_width"`
	PreviewHeight       int `toml:"preview_height"`
	PreviewSteps        int `toml:"preview_steps"`
	PreviewPromptBudget int `toml:"preview_prompt_budget"`
	MaxVisibleFaces     int `toml:"max_visible_faces"`
}

// Extraction contains thumbnail extraction settings. Padding keys are issue
// types; missing types fall back to DefaultPadding.
type Extraction struct {
	ThumbnailSize    int                `toml:"thumbnail_size"`
	MinWidthFraction float64            `toml:"min_width_fraction"`
	JPEGQuality      int                `toml:"jpeg_quality"`
	DefaultPadding   float64            `toml:"default_padding"`
	Padding          map[string]float64 `toml:"padding"`
}

// Issues contains normalization and deduplication settings.
type Issues struct {
	DedupeIoUThreshold      float64 `toml:"dedupe_iou_threshold"`
	CharacterMatchThreshold float64 `toml:"character_match_threshold"`
	TypeGlossaryPath        string  `toml:"type_glossary_path"`
}

// Pipeline contains repair-targeting concurrency settings.
type Pipeline struct {
	PageConcurrency int    `toml:"page_concurrency"`
	MetricsPath     string `toml:"metrics_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for storyqa.
//
// Configuration sections by subsystem:
//   - Paths: story data root, log directory, run ledger database
//   - Models: provider selection per model role (text, vision, image)
//   - LLM, Anthropic, Gemini: provider credentials and model names
//   - Composition: preview size, step count, prompt budget, face limit
//   - Extraction: thumbnail size, context floor, padding per issue type
//   - Issues: dedup IoU threshold, character matching, type glossary
//   - Pipeline: page concurrency and metrics output
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Models      Models      `toml:"models"`
	LLM         LLM         `toml:"llm"`
	Anthropic   Anthropic   `toml:"anthropic"`
	Gemini      Gemini      `toml:"gemini"`
	Composition Composition `toml:"composition"`
	Extraction  Extraction  `toml:"extraction"`
	Issues      Issues      `toml:"issues"`
	Pipeline    Pipeline    `toml:"pipeline"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyqa.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories plus the run ledger's parent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Paths.RunLogPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.RunLogPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StoriesDir is the root under which per-story issue manifests live.
func (c *Config) StoriesDir() string {
	return filepath.Join(c.Paths.DataDir, "stories")
}

// PaddingFor returns the padding fraction for an issue type.
func (c *Config) PaddingFor(issueType string) float64 {
	if value, ok := c.Extraction.Padding[strings.ToLower(strings.TrimSpace(issueType))]; ok {
		return value
	}
	return c.Extraction.DefaultPadding
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the OpenRouter connection settings for one model role.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	RetryAttempts  int
}

// TextLLM returns the OpenRouter settings for text calls.
func (c *Config) TextLLM() LLMConfig {
	return LLMConfig{
		APIKey:         c.LLM.APIKey,
		BaseURL:        c.LLM.BaseURL,
		Model:          c.LLM.Model,
		Referer:        c.LLM.Referer,
		Title:          c.LLM.Title,
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		RetryAttempts:  c.LLM.RetryAttempts,
	}
}

// VisionLLM returns the OpenRouter settings for image calls. Falls back to
// the text model when no vision model is configured.
func (c *Config) VisionLLM() LLMConfig {
	cfg := c.TextLLM()
	if c.LLM.VisionModel != "" {
		cfg.Model = c.LLM.VisionModel
	}
	return cfg
}
