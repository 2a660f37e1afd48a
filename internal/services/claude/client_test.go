package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyqa/internal/services"
)

func messageServer(t *testing.T, text string, capture *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "claude-test",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []any{map[string]any{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 3, "output_tokens": 2},
		})
	}))
}

func TestCompleteText(t *testing.T) {
	server := messageServer(t, "a quiet harbor", nil)
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "claude-test", MaxRetries: 1})
	text, err := client.CompleteText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteText returned error: %v", err)
	}
	if text != "a quiet harbor" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestDescribeImageSendsBase64Block(t *testing.T) {
	var captured map[string]any
	server := messageServer(t, `{"figures":[]}`, &captured)
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "claude-test", MaxRetries: 1})
	if _, err := client.DescribeImage(context.Background(), "describe", "what is here", []byte{0xff, 0xd8, 0xff}, "image/jpeg"); err != nil {
		t.Fatalf("DescribeImage returned error: %v", err)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected one user message, got %v", captured["messages"])
	}
	content, _ := messages[0].(map[string]any)["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("expected image and text blocks, got %v", content)
	}
	image, _ := content[0].(map[string]any)
	if image["type"] != "image" {
		t.Fatalf("expected image block first, got %v", image)
	}
	source, _ := image["source"].(map[string]any)
	if source["media_type"] != "image/jpeg" || source["data"] != "/9j/" {
		t.Fatalf("unexpected image source %v", source)
	}
}

func TestHealthCheck(t *testing.T) {
	server := messageServer(t, "```json\n{\"ok\":true}\n```", nil)
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL, Model: "claude-test", MaxRetries: 1})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestUnauthorizedIsConfigurationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "claude-test", MaxRetries: 1})
	_, err := client.CompleteText(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestMissingKey(t *testing.T) {
	client := NewClient(Config{Model: "claude-test"})
	if _, err := client.CompleteText(context.Background(), "system", "user"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := client.DescribeImage(context.Background(), "", "look", nil, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty image, got %v", err)
	}
}
