package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"storyqa/internal/config"
	"storyqa/internal/preflight"
	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

type statusReport struct {
	Checks  []preflight.Result                       `json:"checks"`
	Summary map[runlog.Kind]map[services.Outcome]int `json:"summary,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check directories, credentials, provider reachability, and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			report := statusReport{Checks: collectChecks(runCtx, cfg, offline)}
			if store, err := ctx.openRunLog(runCtx); err == nil {
				if summary, err := store.Summary(runCtx); err == nil && len(summary) > 0 {
					report.Summary = summary
				}
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			renderStatus(cmd.OutOrStdout(), report, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip provider API probes")
	return cmd
}

func collectChecks(ctx context.Context, cfg *config.Config, offline bool) []preflight.Result {
	if offline {
		checks := []preflight.Result{
			preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
			preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
			preflight.CheckRunLog(ctx, cfg.Paths.RunLogPath),
		}
		return append(checks, preflight.CheckCredentials(cfg)...)
	}

	checks := preflight.RunAll(ctx, cfg)
	providers, err := buildProviders(ctx, cfg, cfg.Models.ImageProvider == config.ProviderGemini && cfg.Gemini.APIKey != "")
	if err != nil {
		return append(checks, preflight.Result{Name: "Providers", Detail: err.Error()})
	}
	if providers.gemini != nil {
		checks = append(checks, preflight.CheckService(ctx, "Gemini API", providers.gemini))
	}
	for model, client := range providers.claude {
		checks = append(checks, preflight.CheckService(ctx, fmt.Sprintf("Anthropic API (%s)", model), client))
	}
	return checks
}

func renderStatus(out io.Writer, report statusReport, colorize bool) {
	for _, line := range renderSectionHeader("Readiness", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, check := range report.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	if len(report.Summary) == 0 {
		return
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Runs", colorize) {
		fmt.Fprintln(out, line)
	}
	renderSummary(out, report.Summary)
}
