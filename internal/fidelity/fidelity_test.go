package fidelity

import (
	"context"
	"errors"
	"strings"
	"testing"

	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/services"
)

type stubVision struct {
	reply       string
	err         error
	instruction string
	calls       int
}

func (s *stubVision) DescribeImage(_ context.Context, _, instruction string, _ []byte, _ string) (string, error) {
	s.calls++
	s.instruction = instruction
	return s.reply, s.err
}

func TestEvaluateScalesScoreAndIssues(t *testing.T) {
	vision := &stubVision{reply: `Result: {"score": 7.5, "summary": "mostly right", "issues": [
		{"description": "Otto holds the key instead of Mira", "severity": "major", "character": "Otto"},
		{"description": "  ", "severity": "minor"}
	]}`}
	e := NewEvaluator(vision, logging.NewNop())
	res, err := e.Evaluate(context.Background(), Request{Image: []byte{1}, StoryText: "Mira unlocks the gate.", SceneHint: "garden gate"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Score != 75 {
		t.Fatalf("expected score 75, got %d", res.Score)
	}
	if len(res.Issues) != 1 || res.Issues[0].Severity != issues.SeverityMajor || res.Issues[0].Character != "Otto" {
		t.Fatalf("unexpected issues %+v", res.Issues)
	}
	if !strings.Contains(vision.instruction, "Mira unlocks the gate.") || !strings.Contains(vision.instruction, "garden gate") {
		t.Fatalf("instruction missing context: %q", vision.instruction)
	}
}

func TestEvaluateWithoutStoryTextIsDisabled(t *testing.T) {
	vision := &stubVision{}
	res, err := NewEvaluator(vision, nil).Evaluate(context.Background(), Request{Image: []byte{1}, StoryText: "   "})
	if err != nil || res != nil {
		t.Fatalf("expected nil, nil; got %+v, %v", res, err)
	}
	if vision.calls != 0 {
		t.Fatal("vision model should not be called")
	}
}

func TestEvaluateUnparseableIsDegraded(t *testing.T) {
	vision := &stubVision{reply: "I think it is good"}
	res, err := NewEvaluator(vision, nil).Evaluate(context.Background(), Request{Image: []byte{1}, StoryText: "x"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Error == "" || res.Score != 0 {
		t.Fatalf("expected degraded result, got %+v", res)
	}
}

func TestEvaluateErrors(t *testing.T) {
	if _, err := NewEvaluator(nil, nil).Evaluate(context.Background(), Request{Image: []byte{1}, StoryText: "x"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	vision := &stubVision{err: errors.New("boom")}
	if _, err := NewEvaluator(vision, nil).Evaluate(context.Background(), Request{Image: []byte{1}, StoryText: "x"}); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if _, err := NewEvaluator(vision, nil).Evaluate(context.Background(), Request{StoryText: "x"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestScaleScoreClamps(t *testing.T) {
	cases := map[float64]int{-2: 0, 0: 0, 4.44: 44, 10: 100, 12: 100}
	for raw, want := range cases {
		if got := ScaleScore(raw); got != want {
			t.Fatalf("ScaleScore(%v) = %d, want %d", raw, got, want)
		}
	}
}
