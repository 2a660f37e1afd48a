package main

import (
	"path/filepath"
	"strings"
	"testing"

	"storyqa/internal/testsupport"
)

func TestLogsFiltersByStory(t *testing.T) {
	env := setupCLITestEnv(t)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "storyqa.log")
	testsupport.WriteFile(t, logPath, []byte(strings.Join([]string{
		`{"msg":"targeting started","story_id":"alpha"}`,
		`{"msg":"targeting started","story_id":"beta"}`,
		`{"msg":"targeting finished","story_id":"alpha"}`,
	}, "\n")+"\n"))

	out, _, err := runCLI(t, []string{"logs", "--story", "alpha", "-n", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("logs returned error: %v", err)
	}
	requireContains(t, out, "targeting finished")
	if strings.Contains(out, "beta") {
		t.Fatalf("expected beta lines to be filtered, got %q", out)
	}
}

func TestLogsEmptyFile(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"logs"}, env.configPath)
	if err != nil {
		t.Fatalf("logs returned error: %v", err)
	}
	requireContains(t, out, "No log entries")
}
