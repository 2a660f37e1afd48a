package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/composition"
	"storyqa/internal/fileutil"
	"storyqa/internal/issues"
	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

func newValidateSceneCommand(ctx *commandContext) *cobra.Command {
	var storyID string
	var pageNumber int
	var correctedPath string
	var previewPath string

	cmd := &cobra.Command{
		Use:   "validate-scene <scene-file>",
		Short: "Render a draft preview of a scene and repair composition problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			scene, err := composition.LoadScene(args[0])
			if err != nil {
				return err
			}

			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			providers, err := buildProviders(runCtx, cfg, true)
			if err != nil {
				return err
			}
			validator := composition.NewValidator(providers.images, providers.vision, providers.text, composition.Options{
				PreviewWidth:    cfg.Composition.PreviewWidth,
				PreviewHeight:   cfg.Composition.PreviewHeight,
				PreviewSteps:    cfg.Composition.PreviewSteps,
				PromptBudget:    cfg.Composition.PreviewPromptBudget,
				MaxVisibleFaces: cfg.Composition.MaxVisibleFaces,
			}, logger)

			started := time.Now().UTC()
			result, runErr := validator.ValidateAndRepairScene(runCtx, scene)
			run := runlog.Run{
				Kind:       runlog.KindValidation,
				StoryID:    storyIDOrDefault(storyID, args[0]),
				PageNumber: pageNumber,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
			}
			if result != nil {
				failures := result.Comparison.Failures()
				run.Passed = result.Comparison != nil && result.Comparison.Pass
				run.Repaired = result.WasRepaired
				run.IssueCount = len(failures)
				run.CriticalCount = countCritical(failures)
				run.Detail = result.Error
			}
			run.Outcome = outcomeFor(runErr, result != nil && result.Error != "")
			if runErr != nil {
				run.Detail = runErr.Error()
			}
			ctx.recordRun(runCtx, run)
			if runErr != nil {
				return runErr
			}

			if previewPath != "" && result.Preview != nil {
				if err := fileutil.WriteFileAtomic(previewPath, result.Preview.Image, 0o644); err != nil {
					return fmt.Errorf("write preview: %w", err)
				}
			}
			if correctedPath != "" {
				if err := writeScene(correctedPath, result.FinalScene); err != nil {
					return err
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			renderValidation(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().StringVar(&storyID, "story", "", "Story identifier recorded in history (defaults to the scene file name)")
	cmd.Flags().IntVar(&pageNumber, "page", 0, "Page number recorded in history")
	cmd.Flags().StringVarP(&correctedPath, "output", "o", "", "Write the final scene to this path (.json or .yaml)")
	cmd.Flags().StringVar(&previewPath, "save-preview", "", "Write the draft preview image to this path")
	return cmd
}

func countCritical(checks []composition.CheckResult) int {
	n := 0
	for _, check := range checks {
		if check.Severity == issues.SeverityCritical {
			n++
		}
	}
	return n
}

func writeScene(path string, scene composition.Scene) error {
	data, err := encoderForPath(path)(scene)
	if err != nil {
		return services.Wrap(services.ErrValidation, "cli", "write scene", "encode scene", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write scene: %w", err)
	}
	return nil
}

func renderValidation(out io.Writer, result *composition.ValidationResult, colorize bool) {
	for _, line := range renderSectionHeader("Composition", colorize) {
		fmt.Fprintln(out, line)
	}
	comparison := result.Comparison
	switch {
	case comparison == nil:
		fmt.Fprintln(out, renderStatusLine("Checks", statusWarn, "not evaluated", colorize))
	case comparison.Pass:
		fmt.Fprintln(out, renderStatusLine("Checks", statusOK, "all checks passed", colorize))
	case comparison.Critical():
		fmt.Fprintln(out, renderStatusLine("Checks", statusError, fmt.Sprintf("%d failed (critical)", len(comparison.Failures())), colorize))
	default:
		fmt.Fprintln(out, renderStatusLine("Checks", statusWarn, fmt.Sprintf("%d failed", len(comparison.Failures())), colorize))
	}
	if result.Description != nil {
		fmt.Fprintln(out, renderStatusLine("Visible faces", statusInfo, fmt.Sprintf("%d", result.Description.VisibleFaceCount), colorize))
	}
	repairKind, repairText := statusInfo, "not needed"
	switch {
	case result.WasRepaired:
		repairKind, repairText = statusOK, fmt.Sprintf("%d fixes applied", len(result.Fixes))
	case comparison != nil && !comparison.Pass:
		repairKind, repairText = statusWarn, "original scene kept"
	}
	fmt.Fprintln(out, renderStatusLine("Repair", repairKind, repairText, colorize))
	if result.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Note", statusWarn, result.Error, colorize))
	}

	if failures := comparison.Failures(); len(failures) > 0 {
		rows := make([][]string, 0, len(failures))
		for _, check := range failures {
			rows = append(rows, []string{string(check.ID), string(check.Severity), check.Requested, check.Observed})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Check", "Severity", "Requested", "Observed"}, rows, nil))
	}
	if len(result.Fixes) > 0 {
		rows := make([][]string, 0, len(result.Fixes))
		for _, fix := range result.Fixes {
			rows = append(rows, []string{string(fix.CheckID), fix.Change})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable([]string{"Check", "Change"}, rows, nil))
	}
}

func storyIDOrDefault(storyID, path string) string {
	if strings.TrimSpace(storyID) != "" {
		return storyID
	}
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." {
		return "scene"
	}
	return base
}

// readInput reads a file argument, with "-" meaning stdin.
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
