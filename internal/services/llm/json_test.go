package llm

import (
	"errors"
	"testing"
)

func TestExtractJSONObjectSkipsProseAndBracesInStrings(t *testing.T) {
	text := "Sure! Here is the analysis:\n```json\n{\"note\":\"a {weird} value\",\"nested\":{\"ok\":true}}\n```\nLet me know."
	got, err := ExtractJSONObject(text)
	if err != nil {
		t.Fatalf("ExtractJSONObject returned error: %v", err)
	}
	want := `{"note":"a {weird} value","nested":{"ok":true}}`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractJSONObjectErrors(t *testing.T) {
	for _, text := range []string{"", "no json here", `{"open": {"still": 1}`} {
		if _, err := ExtractJSONObject(text); !errors.Is(err, ErrNoJSONObject) {
			t.Fatalf("ExtractJSONObject(%q) error = %v, want ErrNoJSONObject", text, err)
		}
	}
}

func TestEscapeControlCharsOnlyInsideStrings(t *testing.T) {
	raw := "{\n\"fixes\": [\"line one\nline two\ttabbed\"]\n}"
	got := EscapeControlChars(raw)
	want := "{\n\"fixes\": [\"line one\\nline two\\ttabbed\"]\n}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecodeObjectNormalizesOnce(t *testing.T) {
	var parsed struct {
		Fixes []string `json:"fixes"`
	}
	text := "Result:\n{\"fixes\": [\"moved the fox\nto the left\"]}"
	if err := DecodeObject(text, &parsed); err != nil {
		t.Fatalf("DecodeObject returned error: %v", err)
	}
	if len(parsed.Fixes) != 1 || parsed.Fixes[0] != "moved the fox\nto the left" {
		t.Fatalf("unexpected fixes %#v", parsed.Fixes)
	}
}

func TestDecodeObjectReportsBrokenJSON(t *testing.T) {
	var parsed map[string]any
	if err := DecodeObject(`{"fixes": [1, 2,, ]}`, &parsed); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeLLMJSONStripsFence(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON("```json\n{\"ok\":true}\n```", &parsed); err != nil || !parsed.OK {
		t.Fatalf("DecodeLLMJSON = %v, parsed %+v", err, parsed)
	}
}
