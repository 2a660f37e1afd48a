package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/fidelity"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

func newFidelityCommand(ctx *commandContext) *cobra.Command {
	var storyText string
	var storyTextFile string
	var prompt string
	var sceneHint string
	var storyID string
	var pageNumber int

	cmd := &cobra.Command{
		Use:   "fidelity <page-image>",
		Short: "Score how well a rendered page tells its story text",
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
			if storyTextFile != "" {
				data, err := readInput(storyTextFile)
				if err != nil {
					return services.Wrap(services.ErrValidation, "cli", "read story text", storyTextFile, err)
				}
				storyText = string(data)
			}
			image, err := os.ReadFile(args[0])
			if err != nil {
				return services.Wrap(services.ErrValidation, "cli", "read page image", args[0], err)
			}

			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			providers, err := buildProviders(runCtx, cfg, false)
			if err != nil {
				return err
			}
			evaluator := fidelity.NewEvaluator(providers.vision, logger)

			started := time.Now().UTC()
			result, runErr := evaluator.Evaluate(runCtx, fidelity.Request{
				Image:            image,
				MIMEType:         http.DetectContentType(image),
				StoryText:        storyText,
				GenerationPrompt: prompt,
				SceneHint:        sceneHint,
			})
			if runErr == nil && result == nil {
				logger.Info("fidelity skipped",
					logging.Args(logging.DecisionAttrs("fidelity_check", "skipped", "no story text")...)...)
				fmt.Fprintln(cmd.OutOrStdout(), "No story text; fidelity check skipped")
				return nil
			}

			run := runlog.Run{
				Kind:       runlog.KindFidelity,
				StoryID:    storyIDOrDefault(storyID, args[0]),
				PageNumber: pageNumber,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
			}
			if result != nil {
				score := result.Score
				run.Score = &score
				run.IssueCount = len(result.Issues)
				run.Passed = result.Error == ""
				run.Detail = result.Error
				for _, issue := range result.Issues {
					if issue.Severity == issues.SeverityCritical {
						run.CriticalCount++
					}
				}
			}
			run.Outcome = outcomeFor(runErr, result != nil && result.Error != "")
			if runErr != nil {
				run.Detail = runErr.Error()
			}
			ctx.recordRun(runCtx, run)
			if runErr != nil {
				return runErr
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			renderFidelity(cmd.OutOrStdout(), result, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}

	cmd.Flags().StringVar(&storyText, "text", "", "Story text the page should illustrate")
	cmd.Flags().StringVar(&storyTextFile, "text-file", "", "Read story text from this file (- for stdin)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Prompt the page was generated from")
	cmd.Flags().StringVar(&sceneHint, "scene", "", "Short scene description")
	cmd.Flags().StringVar(&storyID, "story", "", "Story identifier recorded in history (defaults to the image file name)")
	cmd.Flags().IntVar(&pageNumber, "page", 0, "Page number recorded in history")
	return cmd
}

func renderFidelity(out io.Writer, result *fidelity.Result, colorize bool) {
	for _, line := range renderSectionHeader("Fidelity", colorize) {
		fmt.Fprintln(out, line)
	}
	kind := statusOK
	switch {
	case result.Error != "":
		kind = statusWarn
	case result.Score < 50:
		kind = statusError
	case result.Score < 75:
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Score", kind, fmt.Sprintf("%d/100", result.Score), colorize))
	if summary := strings.TrimSpace(result.Summary); summary != "" {
		fmt.Fprintln(out, renderStatusLine("Summary", statusInfo, summary, colorize))
	}
	if result.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Note", statusWarn, result.Error, colorize))
	}
	if len(result.Issues) == 0 {
		return
	}
	rows := make([][]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		rows = append(rows, []string{string(issue.Severity), issue.Character, issue.Description})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable([]string{"Severity", "Character", "Description"}, rows, nil))
}
