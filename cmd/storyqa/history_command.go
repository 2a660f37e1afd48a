package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var storyID string
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent validation, targeting, and fidelity runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			store, err := ctx.openRunLog(runCtx)
			if err != nil {
				return err
			}
			filter := runlog.Filter{StoryID: strings.TrimSpace(storyID), Kind: runlog.Kind(strings.ToLower(strings.TrimSpace(kind))), Limit: limit}
			switch filter.Kind {
			case "", runlog.KindValidation, runlog.KindTargeting, runlog.KindFidelity:
			default:
				return services.Wrap(services.ErrValidation, "cli", "history", fmt.Sprintf("unknown kind %q", kind), nil)
			}
			runs, err := store.Recent(runCtx, filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if runs == nil {
					runs = []runlog.Run{}
				}
				return writeJSON(cmd, runs)
			}
			renderHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().StringVar(&storyID, "story", "", "Only show runs for this story")
	cmd.Flags().StringVar(&kind, "kind", "", "Only show runs of this kind (validation, targeting, fidelity)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to show")
	return cmd
}

func renderHistory(out io.Writer, runs []runlog.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		page := ""
		if run.PageNumber > 0 {
			page = strconv.Itoa(run.PageNumber)
		}
		score := ""
		if run.Score != nil {
			score = strconv.Itoa(*run.Score)
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format(time.DateTime),
			string(run.Kind),
			run.StoryID,
			page,
			string(run.Outcome),
			yesNo(run.Passed),
			strconv.Itoa(run.IssueCount),
			score,
			run.Duration().Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Started", "Kind", "Story", "Page", "Outcome", "Passed", "Issues", "Score", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
}

func renderSummary(out io.Writer, summary map[runlog.Kind]map[services.Outcome]int) {
	kinds := make([]string, 0, len(summary))
	for kind := range summary {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	outcomes := []services.Outcome{services.OutcomeOK, services.OutcomeDegraded, services.OutcomeUnavailable, services.OutcomeInvalidInput, services.OutcomeFailed}
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		row := []string{kind}
		for _, outcome := range outcomes {
			row = append(row, strconv.Itoa(summary[runlog.Kind(kind)][outcome]))
		}
		rows = append(rows, row)
	}
	headers := []string{"Kind"}
	aligns := []columnAlignment{alignLeft}
	for _, outcome := range outcomes {
		headers = append(headers, string(outcome))
		aligns = append(aligns, alignRight)
	}
	fmt.Fprintln(out, renderTable(headers, rows, aligns))
}
