package claude

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"storyqa/internal/services"
	"storyqa/internal/services/llm"
)

const defaultMaxTokens = 4096

// Config contains the Anthropic settings for one model role.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	MaxRetries int
}

// Client calls the Anthropic Messages API. It satisfies the composition and
// fidelity model interfaces.
type Client struct {
	cfg    Config
	client anthropic.Client
}

// NewClient constructs a Messages API client.
func NewClient(cfg Config) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &Client{cfg: cfg, client: anthropic.NewClient(opts...)}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.cfg.Model
}

// CompleteText sends a single-turn text prompt.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.send(ctx, "complete text", systemPrompt, anthropic.NewTextBlock(userPrompt))
}

// DescribeImage sends one image plus an instruction.
func (c *Client) DescribeImage(ctx context.Context, systemPrompt, instruction string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", services.Wrap(services.ErrValidation, "claude", "describe image", "image payload is empty", nil)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(image)
	}
	return c.send(ctx, "describe image", systemPrompt,
		anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(image)),
		anthropic.NewTextBlock(instruction),
	)
}

// HealthCheck verifies the key and model with a tiny JSON request.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.send(ctx, "health check", "Reply with the JSON object {\"ok\":true}.", anthropic.NewTextBlock("ping"))
	if err != nil {
		return err
	}
	var payload struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeObject(content, &payload); err != nil {
		return services.Wrap(services.ErrExternalTool, "claude", "health check", "unexpected health check reply", err)
	}
	if !payload.OK {
		return services.Wrap(services.ErrExternalTool, "claude", "health check", "health check reply was not ok", nil)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, systemPrompt string, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	if c == nil {
		return "", services.Wrap(services.ErrConfiguration, "claude", op, "client is not configured", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", services.Wrap(services.ErrConfiguration, "claude", op, "anthropic api key missing", nil)
	}
	if strings.TrimSpace(c.cfg.Model) == "" {
		return "", services.Wrap(services.ErrConfiguration, "claude", op, "anthropic model missing", nil)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(op, err)
	}
	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", services.Wrap(services.ErrExternalTool, "claude", op,
			fmt.Sprintf("no text content in response (stop_reason=%s)", message.StopReason), nil)
	}
	return text.String(), nil
}

func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "claude", op, "request cancelled", err)
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "claude", op, fmt.Sprintf("anthropic rejected credentials (%d)", apiErr.StatusCode), err)
		case apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500:
			return services.Wrap(services.ErrTransient, "claude", op, fmt.Sprintf("anthropic unavailable (%d)", apiErr.StatusCode), err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "claude", op, "anthropic request failed", err)
}
