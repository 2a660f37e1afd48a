package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyqa/internal/config"
	"storyqa/internal/runlog"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckLLM_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "Text LLM", config.LLMConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "demo"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "Text LLM", config.LLMConfig{Model: "demo"})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("expected missing key failure, got %+v", result)
	}
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

func TestCheckService(t *testing.T) {
	if result := CheckService(context.Background(), "Gemini", stubChecker{}); !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}
	result := CheckService(context.Background(), "Gemini", stubChecker{err: context.DeadlineExceeded})
	if result.Passed || !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("expected timeout summary, got %+v", result)
	}
	result = CheckService(context.Background(), "Gemini", stubChecker{err: errors.New("quota exhausted")})
	if result.Passed || result.Detail != "quota exhausted" {
		t.Fatalf("expected raw error detail, got %+v", result)
	}
	if result := CheckService(context.Background(), "Gemini", nil); result.Passed {
		t.Fatal("nil checker should fail")
	}
}

func TestCheckCredentialsGroupsRoles(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKey = "or-key"

	results := CheckCredentials(&cfg)
	if len(results) != 2 {
		t.Fatalf("expected one result per provider, got %+v", results)
	}
	if !results[0].Passed || !strings.Contains(results[0].Detail, "text, vision") {
		t.Fatalf("expected OpenRouter to cover text and vision, got %+v", results[0])
	}
	if results[1].Passed || !strings.Contains(results[1].Detail, "image") {
		t.Fatalf("expected missing Gemini key for image, got %+v", results[1])
	}
}

func TestCheckRunLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	if result := CheckRunLog(context.Background(), path); !result.Passed {
		t.Fatalf("missing ledger should pass, got %+v", result)
	}

	store, err := runlog.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}
	result := CheckRunLog(context.Background(), path)
	if !result.Passed || !strings.Contains(result.Detail, "0 runs") {
		t.Fatalf("expected healthy empty ledger, got %+v", result)
	}
}
