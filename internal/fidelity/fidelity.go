package fidelity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/services"
	"storyqa/internal/services/llm"
)

// VisionModel answers an instruction about one image.
type VisionModel interface {
	DescribeImage(ctx context.Context, systemPrompt, instruction string, image []byte, mimeType string) (string, error)
}

// Request is one page to evaluate.
type Request struct {
	Image            []byte
	MIMEType         string
	StoryText        string
	GenerationPrompt string
	SceneHint        string
}

// SemanticIssue is a narrative mismatch, e.g. the wrong character holding
// the key.
type SemanticIssue struct {
	Description string          `json:"description"`
	Severity    issues.Severity `json:"severity"`
	Character   string          `json:"character,omitempty"`
}

// Result scores how well the image tells the story text, from 0 to 100.
type Result struct {
	Score   int             `json:"score"`
	Summary string          `json:"summary,omitempty"`
	Issues  []SemanticIssue `json:"issues"`
	Error   string          `json:"error,omitempty"`
}

// Evaluator checks narrative fidelity independently of geometry.
type Evaluator struct {
	vision VisionModel
	logger *slog.Logger
}

// NewEvaluator wires a vision model into an evaluator.
func NewEvaluator(vision VisionModel, logger *slog.Logger) *Evaluator {
	return &Evaluator{vision: vision, logger: logging.NewComponentLogger(logger, "fidelity")}
}

var errMissingScore = errors.New("score missing from model output")

const systemPrompt = `You judge whether a children's book illustration depicts its story text:
who is present, who does what, and to whom. Ignore art style and composition quality.`

type modelResult struct {
	Score   *float64 `json:"score"`
	Summary string   `json:"summary"`
	Issues  []struct {
		Description string `json:"description"`
		Severity    string `json:"severity"`
		Character   string `json:"character"`
	} `json:"issues"`
}

// Evaluate scores the image against the story text. It returns nil, nil when
// there is no story text to check against.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.StoryText) == "" {
		return nil, nil
	}
	if e.vision == nil {
		return nil, services.Wrap(services.ErrConfiguration, "fidelity", "evaluate", "no vision model configured", nil)
	}
	if len(req.Image) == 0 {
		return nil, services.Wrap(services.ErrValidation, "fidelity", "evaluate", "image is empty", nil)
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	instruction, err := buildInstruction(req)
	if err != nil {
		return nil, err
	}
	text, err := e.vision.DescribeImage(ctx, systemPrompt, instruction, req.Image, mime)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "fidelity", "evaluate", "vision model call failed", err)
	}

	var parsed modelResult
	if err := llm.DecodeObject(text, &parsed); err != nil || parsed.Score == nil {
		if err == nil {
			err = errMissingScore
		}
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "fidelity output unparseable", "fidelity_parse_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "page has no fidelity score"),
			logging.String(logging.FieldErrorHint, "inspect the vision model output"),
		)
		return &Result{Issues: []SemanticIssue{}, Error: err.Error()}, nil
	}

	result := &Result{
		Score:   ScaleScore(*parsed.Score),
		Summary: strings.TrimSpace(parsed.Summary),
		Issues:  make([]SemanticIssue, 0, len(parsed.Issues)),
	}
	for _, issue := range parsed.Issues {
		desc := strings.TrimSpace(issue.Description)
		if desc == "" {
			continue
		}
		result.Issues = append(result.Issues, SemanticIssue{
			Description: desc,
			Severity:    issues.ParseSeverity(issue.Severity),
			Character:   strings.TrimSpace(issue.Character),
		})
	}
	return result, nil
}

// ScaleScore maps a 0-10 model score onto 0-100.
func ScaleScore(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	scaled := math.Round(raw * 10)
	return int(math.Max(0, math.Min(100, scaled)))
}

func buildInstruction(req Request) (string, error) {
	fields := map[string]string{"storyText": strings.TrimSpace(req.StoryText)}
	if v := strings.TrimSpace(req.GenerationPrompt); v != "" {
		fields["generationPrompt"] = v
	}
	if v := strings.TrimSpace(req.SceneHint); v != "" {
		fields["sceneHint"] = v
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fidelity context: %w", err)
	}
	return string(data) + `
Score from 0 (unrelated) to 10 (exactly the described action) and list concrete mismatches.
Respond with JSON only:
{"score":0,"summary":"","issues":[{"description":"","severity":"critical|major|minor","character":""}]}`, nil
}
