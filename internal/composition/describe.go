package composition

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"storyqa/internal/logging"
	"storyqa/internal/services"
	"storyqa/internal/services/llm"
)

// FigureDescription is one figure as seen, with no knowledge of who it is.
type FigureDescription struct {
	ID                string   `json:"id"`
	FramePosition     string   `json:"framePosition"`
	TorsoOrientation  string   `json:"torsoOrientation"`
	FaceDirection     string   `json:"faceDirection"`
	FaceVisible       *bool    `json:"faceVisible,omitempty"`
	PointingDirection string   `json:"pointingDirection,omitempty"`
	Pose              string   `json:"pose,omitempty"`
	HeldObjects       []string `json:"heldObjects,omitempty"`
}

// LandmarkDescription places one landmark in frame.
type LandmarkDescription struct {
	Name          string `json:"name"`
	FramePosition string `json:"framePosition"`
	Visibility    string `json:"visibility,omitempty"`
}

// Description is the unbiased geometric account of an image. Error is set,
// and the rest left empty, when the model output could not be parsed.
type Description struct {
	Figures          []FigureDescription   `json:"figures"`
	Landmarks        []LandmarkDescription `json:"landmarks"`
	VisibleFaceCount int                   `json:"visibleFaceCount"`
	Setting          string                `json:"setting,omitempty"`
	VisibleText      string                `json:"visibleText,omitempty"`
	Error            string                `json:"error,omitempty"`
}

// FacesVisible is the larger of the reported count and the figures whose
// face is marked visible.
func (d *Description) FacesVisible() int {
	if d == nil {
		return 0
	}
	counted := 0
	for _, f := range d.Figures {
		if f.FaceVisible != nil && *f.FaceVisible {
			counted++
		}
	}
	return max(counted, d.VisibleFaceCount)
}

// Figure finds a described figure by ID.
func (d *Description) Figure(id string) (FigureDescription, bool) {
	if d == nil {
		return FigureDescription{}, false
	}
	for _, f := range d.Figures {
		if strings.EqualFold(f.ID, id) {
			return f, true
		}
	}
	return FigureDescription{}, false
}

// Describe asks the vision model for geometry only. No scene context is sent.
func (v *Validator) Describe(ctx context.Context, image []byte, mimeType string) (*Description, error) {
	if v.vision == nil {
		return nil, services.Wrap(services.ErrConfiguration, "composition", "describe", "no vision model configured", nil)
	}
	text, err := v.vision.DescribeImage(ctx, describeSystemPrompt, describeInstruction, image, mimeType)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "describe", "vision model call failed", err)
	}
	var desc Description
	if err := llm.DecodeObject(text, &desc); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, v.logger), "scene description unparseable", "describe_parse_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "comparison runs without figure geometry"),
			logging.String(logging.FieldErrorHint, "inspect the vision model output"),
		)
		return &Description{Error: err.Error()}, nil
	}
	return &desc, nil
}

// FigureMapping ties a described figure to a named character.
type FigureMapping struct {
	FigureID   string  `json:"figureId"`
	Character  string  `json:"character"`
	Confidence float64 `json:"confidence,omitempty"`
}

// LandmarkMapping ties a scene object to where it appears in frame.
type LandmarkMapping struct {
	Object        string `json:"object"`
	FramePosition string `json:"framePosition,omitempty"`
	Visible       bool   `json:"visible"`
}

// Analysis is the context-aware pass run after the unbiased description.
type Analysis struct {
	Figures   []FigureMapping   `json:"figures"`
	Landmarks []LandmarkMapping `json:"landmarks"`
	Error     string            `json:"error,omitempty"`
}

// FigureFor returns the figure mapped to a character, if any.
func (a *Analysis) FigureFor(character string) (string, bool) {
	if a == nil {
		return "", false
	}
	for _, m := range a.Figures {
		if strings.EqualFold(strings.TrimSpace(m.Character), strings.TrimSpace(character)) && m.FigureID != "" {
			return m.FigureID, true
		}
	}
	return "", false
}

// AnalyzeWithContext maps described figures and landmarks to the scene's
// named characters and objects.
func (v *Validator) AnalyzeWithContext(ctx context.Context, image []byte, mimeType string, scene Scene, desc *Description) (*Analysis, error) {
	if v.vision == nil {
		return nil, services.Wrap(services.ErrConfiguration, "composition", "analyze", "no vision model configured", nil)
	}
	instruction, err := analyzeInstruction(scene, desc)
	if err != nil {
		return nil, err
	}
	text, err := v.vision.DescribeImage(ctx, analyzeSystemPrompt, instruction, image, mimeType)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "composition", "analyze", "vision model call failed", err)
	}
	var analysis Analysis
	if err := llm.DecodeObject(text, &analysis); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, v.logger), "scene analysis unparseable", "analyze_parse_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "expression and pointing guards use the scene text only"),
			logging.String(logging.FieldErrorHint, "inspect the vision model output"),
		)
		return &Analysis{Error: err.Error()}, nil
	}
	return &analysis, nil
}

func analyzeInstruction(scene Scene, desc *Description) (string, error) {
	type characterHint struct {
		Name     string `json:"name"`
		Position string `json:"position,omitempty"`
	}
	hints := make([]characterHint, 0, len(scene.Characters))
	for _, c := range scene.Characters {
		hints = append(hints, characterHint{Name: c.Name, Position: c.Position})
	}
	objects := make([]string, 0, len(scene.Objects))
	for _, o := range scene.Objects {
		objects = append(objects, o.Name)
	}
	payload := map[string]any{
		"characters": hints,
		"objects":    objects,
	}
	if desc != nil && desc.Error == "" {
		payload["description"] = desc
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal analysis context: %w", err)
	}
	return "Context:\n" + string(data) + `
Respond with JSON only:
{"figures":[{"figureId":"figure-1","character":"","confidence":0.0}],"landmarks":[{"object":"","framePosition":"","visible":true}]}`, nil
}
