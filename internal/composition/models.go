package composition

import "context"

// TextModel completes free-form text prompts.
type TextModel interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// VisionModel answers an instruction about one image.
type VisionModel interface {
	DescribeImage(ctx context.Context, systemPrompt, instruction string, image []byte, mimeType string) (string, error)
}

// ImageGenerator renders images from text prompts.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error)
}

// ImageRequest describes one render.
type ImageRequest struct {
	Prompt string
	Width  int
	Height int
	Steps  int
}

// GeneratedImage is a rendered image plus the provider's usage record.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
	Usage    Usage
}

// Usage is carried through for auditing; it is not priced here.
type Usage struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Images   int    `json:"images"`
	Steps    int    `json:"steps,omitempty"`
}
