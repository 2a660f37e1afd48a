package composition

import (
	"context"
	"strings"
	"unicode/utf8"

	"storyqa/internal/logging"
	"storyqa/internal/services"
)

// Preview is a low-cost draft render of a scene.
type Preview struct {
	Prompt   string `json:"prompt"`
	Image    []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Steps    int    `json:"steps"`
	Usage    Usage  `json:"usage"`
}

// BuildPreviewPrompt condenses a scene into a terse prompt of at most budget
// characters. Segments are dropped whole from the end before any is cut.
func BuildPreviewPrompt(scene Scene, budget int) string {
	if budget <= 0 {
		budget = defaultPromptBudget
	}
	segments := []string{"Simple draft composition sketch"}
	if v := strings.TrimSpace(scene.Location); v != "" {
		segments = append(segments, "location: "+v)
	}
	if v := strings.TrimSpace(scene.Lighting); v != "" {
		segments = append(segments, "lighting: "+v)
	}
	if v := strings.TrimSpace(scene.Weather); v != "" {
		segments = append(segments, "weather: "+v)
	}
	if v := strings.TrimSpace(scene.CameraAngle); v != "" {
		segments = append(segments, "camera: "+v)
	}
	for _, c := range scene.Characters {
		segments = append(segments, characterSegment(c))
	}
	for _, o := range scene.Objects {
		if name := strings.TrimSpace(o.Name); name != "" {
			if pos := strings.TrimSpace(o.Position); pos != "" {
				segments = append(segments, name+" at "+pos)
			} else {
				segments = append(segments, name)
			}
		}
	}

	var b strings.Builder
	for i, seg := range segments {
		sep := ""
		if i > 0 {
			sep = "; "
		}
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(sep+seg) > budget {
			if i == 0 {
				return truncateRunes(seg, budget)
			}
			break
		}
		b.WriteString(sep)
		b.WriteString(seg)
	}
	return b.String()
}

func characterSegment(c SceneCharacter) string {
	var details []string
	for _, v := range []string{c.Position, c.Pose, c.Action} {
		if v = strings.TrimSpace(v); v != "" {
			details = append(details, v)
		}
	}
	if v := strings.TrimSpace(c.Facing); v != "" {
		details = append(details, "facing "+v)
	}
	if v := strings.TrimSpace(c.PointingAt); v != "" {
		details = append(details, "pointing at "+v)
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		name = "figure"
	}
	if len(details) == 0 {
		return name
	}
	return name + ": " + strings.Join(details, ", ")
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// GeneratePreview renders a draft image for the scene.
func (v *Validator) GeneratePreview(ctx context.Context, scene Scene) (*Preview, error) {
	if v.images == nil {
		return nil, services.Wrap(services.ErrConfiguration, "composition", "generate preview", "no image generator configured", nil)
	}
	prompt := BuildPreviewPrompt(scene, v.opts.PromptBudget)
	req := ImageRequest{
		Prompt: prompt,
		Width:  v.opts.PreviewWidth,
		Height: v.opts.PreviewHeight,
		Steps:  v.opts.PreviewSteps,
	}
	image, err := v.images.GenerateImage(ctx, req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "generate preview", "image generation failed", err)
	}
	if image == nil || len(image.Data) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "generate preview", "image generator returned no data", nil)
	}
	mime := image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	logging.WithContext(ctx, v.logger).Debug("preview generated",
		logging.Int("prompt_chars", utf8.RuneCountInString(prompt)),
		logging.Int("bytes", len(image.Data)),
		logging.String("model", image.Usage.Model),
	)
	return &Preview{
		Prompt:   prompt,
		Image:    image.Data,
		MIMEType: mime,
		Width:    req.Width,
		Height:   req.Height,
		Steps:    req.Steps,
		Usage:    image.Usage,
	}, nil
}
