package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"storyqa/internal/config"
	"storyqa/internal/services/llm"
)

// HealthChecker is any model backend that can probe its own credentials.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CheckLLM verifies that the OpenRouter API is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckLLM(ctx context.Context, name string, cfg config.LLMConfig) Result {
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, llm.WithRetryMaxAttempts(1))
	return CheckService(ctx, name, client)
}

// CheckService runs a backend health check with a 30-second timeout.
func CheckService(ctx context.Context, name string, checker HealthChecker) Result {
	if checker == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckCredentials reports whether every selected provider has an API key.
// Each provider is listed once even when it serves several roles.
func CheckCredentials(cfg *config.Config) []Result {
	roles := map[string][]string{}
	var order []string
	for _, pair := range [][2]string{
		{cfg.Models.TextProvider, "text"},
		{cfg.Models.VisionProvider, "vision"},
		{cfg.Models.ImageProvider, "image"},
	} {
		provider, role := pair[0], pair[1]
		if _, seen := roles[provider]; !seen {
			order = append(order, provider)
		}
		roles[provider] = append(roles[provider], role)
	}

	results := make([]Result, 0, len(order))
	for _, provider := range order {
		name := fmt.Sprintf("%s credentials", providerLabel(provider))
		usedFor := strings.Join(roles[provider], ", ")
		if strings.TrimSpace(providerKey(cfg, provider)) == "" {
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("API key missing (needed for %s)", usedFor)})
			continue
		}
		results = append(results, Result{Name: name, Passed: true, Detail: fmt.Sprintf("present (%s)", usedFor)})
	}
	return results
}

func providerKey(cfg *config.Config, provider string) string {
	switch provider {
	case config.ProviderOpenRouter:
		return cfg.LLM.APIKey
	case config.ProviderAnthropic:
		return cfg.Anthropic.APIKey
	case config.ProviderGemini:
		return cfg.Gemini.APIKey
	default:
		return ""
	}
}

func providerLabel(provider string) string {
	switch provider {
	case config.ProviderOpenRouter:
		return "OpenRouter"
	case config.ProviderAnthropic:
		return "Anthropic"
	case config.ProviderGemini:
		return "Gemini"
	default:
		return provider
	}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
