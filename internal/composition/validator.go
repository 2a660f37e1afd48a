package composition

import (
	"log/slog"

	"storyqa/internal/logging"
)

const (
	defaultPreviewWidth    = 512
	defaultPreviewHeight   = 512
	defaultPreviewSteps    = 4
	defaultPromptBudget    = 600
	defaultMaxVisibleFaces = 3
)

// Options tune the preview render and the face-count guard. Zero values take
// the defaults.
type Options struct {
	PreviewWidth    int
	PreviewHeight   int
	PreviewSteps    int
	PromptBudget    int
	MaxVisibleFaces int
}

func (o Options) withDefaults() Options {
	if o.PreviewWidth <= 0 {
		o.PreviewWidth = defaultPreviewWidth
	}
	if o.PreviewHeight <= 0 {
		o.PreviewHeight = defaultPreviewHeight
	}
	if o.PreviewSteps <= 0 {
		o.PreviewSteps = defaultPreviewSteps
	}
	if o.PromptBudget <= 0 {
		o.PromptBudget = defaultPromptBudget
	}
	if o.MaxVisibleFaces <= 0 {
		o.MaxVisibleFaces = defaultMaxVisibleFaces
	}
	return o
}

// Validator runs the preview, describe, compare, and repair stages. Any of
// the models may be nil; the stage that needs it then fails with a
// configuration error.
type Validator struct {
	images ImageGenerator
	vision VisionModel
	text   TextModel
	opts   Options
	logger *slog.Logger
}

// NewValidator wires the model clients into a validator.
func NewValidator(images ImageGenerator, vision VisionModel, text TextModel, opts Options, logger *slog.Logger) *Validator {
	return &Validator{
		images: images,
		vision: vision,
		text:   text,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(logger, "composition"),
	}
}
