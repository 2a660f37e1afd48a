package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"storyqa/internal/composition"
	"storyqa/internal/services"
)

// Config contains the Gemini API settings.
type Config struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string
	ImageModel  string
}

// Client calls the Gemini API for text, vision, and image generation. It
// satisfies composition.TextModel, composition.VisionModel, and
// composition.ImageGenerator.
type Client struct {
	cfg    Config
	client *genai.Client
}

// NewClient constructs a Gemini API client. The API key is required.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "gemini api key missing", nil)
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "new client", "failed to create gemini client", err)
	}
	return &Client{cfg: cfg, client: client}, nil
}

// CompleteText sends a single-turn text prompt.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}
	return c.generate(ctx, "complete text", c.cfg.TextModel, systemPrompt, contents)
}

// DescribeImage sends one image plus an instruction.
func (c *Client) DescribeImage(ctx context.Context, systemPrompt, instruction string, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", services.Wrap(services.ErrValidation, "gemini", "describe image", "image payload is empty", nil)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = http.DetectContentType(image)
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(image, mimeType),
		genai.NewPartFromText(instruction),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	return c.generate(ctx, "describe image", c.cfg.VisionModel, systemPrompt, contents)
}

// GenerateImage renders one image. Imagen has no step control, so Steps is
// only recorded in the usage.
func (c *Client) GenerateImage(ctx context.Context, req composition.ImageRequest) (*composition.GeneratedImage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, services.Wrap(services.ErrValidation, "gemini", "generate image", "prompt is empty", nil)
	}
	if strings.TrimSpace(c.cfg.ImageModel) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "gemini", "generate image", "gemini image model missing", nil)
	}
	resp, err := c.client.Models.GenerateImages(ctx, c.cfg.ImageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    AspectRatio(req.Width, req.Height),
		OutputMIMEType: "image/jpeg",
	})
	if err != nil {
		return nil, classifyError("generate image", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		reason := ""
		if resp != nil && len(resp.GeneratedImages) > 0 {
			reason = resp.GeneratedImages[0].RAIFilteredReason
		}
		return nil, services.Wrap(services.ErrExternalTool, "gemini", "generate image", fmt.Sprintf("no image returned (filtered=%q)", reason), nil)
	}
	image := resp.GeneratedImages[0].Image
	mimeType := image.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(image.ImageBytes)
	}
	return &composition.GeneratedImage{
		Data:     image.ImageBytes,
		MIMEType: mimeType,
		Usage: composition.Usage{
			Provider: "gemini",
			Model:    c.cfg.ImageModel,
			Images:   1,
			Steps:    req.Steps,
		},
	}, nil
}

// HealthCheck sends one tiny prompt to the text model. Image generation is
// not probed because it is billed per image.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.CompleteText(ctx, "", "Reply with the word ok.")
	return err
}

func (c *Client) generate(ctx context.Context, op, model, systemPrompt string, contents []*genai.Content) (string, error) {
	if c == nil || c.client == nil {
		return "", services.Wrap(services.ErrConfiguration, "gemini", op, "client is not configured", nil)
	}
	if strings.TrimSpace(model) == "" {
		return "", services.Wrap(services.ErrConfiguration, "gemini", op, "gemini model missing", nil)
	}
	var cfg *genai.GenerateContentConfig
	if strings.TrimSpace(systemPrompt) != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		}
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return "", classifyError(op, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrExternalTool, "gemini", op, "no text content in response", nil)
	}
	return text, nil
}

var supportedRatios = []struct {
	label string
	value float64
}{
	{"1:1", 1},
	{"3:4", 3.0 / 4.0},
	{"4:3", 4.0 / 3.0},
	{"9:16", 9.0 / 16.0},
	{"16:9", 16.0 / 9.0},
}

// AspectRatio picks the supported ratio closest to width:height. Unknown
// dimensions map to square.
func AspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	target := math.Log(float64(width) / float64(height))
	best, bestDist := supportedRatios[0].label, math.Inf(1)
	for _, r := range supportedRatios {
		if dist := math.Abs(math.Log(r.value) - target); dist < bestDist {
			best, bestDist = r.label, dist
		}
	}
	return best
}

func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "gemini", op, "request cancelled", err)
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "gemini", op, fmt.Sprintf("gemini rejected credentials (%d)", apiErr.Code), err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			return services.Wrap(services.ErrTransient, "gemini", op, fmt.Sprintf("gemini unavailable (%d)", apiErr.Code), err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "gemini", op, "gemini request failed", err)
}
