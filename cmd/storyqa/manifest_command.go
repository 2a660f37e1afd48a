package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/issues"
	"storyqa/internal/manifest"
	"storyqa/internal/services"
)

const descriptionWidth = 60

func newManifestCommand(ctx *commandContext) *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect and update a story's repair manifest",
	}
	manifestCmd.AddCommand(newManifestShowCommand(ctx))
	manifestCmd.AddCommand(newManifestMarkCommand(ctx))
	return manifestCmd
}

func manifestStore(ctx *commandContext) (*manifest.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	return manifest.NewStore(cfg.StoriesDir(), logger), nil
}

func newManifestShowCommand(ctx *commandContext) *cobra.Command {
	var pageFilter int

	cmd := &cobra.Command{
		Use:   "show <story-id>",
		Short: "List the repair targets recorded for a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := manifestStore(ctx)
			if err != nil {
				return err
			}
			m, err := store.Load(args[0])
			if err != nil {
				if errors.Is(err, manifest.ErrNoManifest) {
					return services.Wrap(services.ErrNotFound, "cli", "manifest show",
						fmt.Sprintf("no manifest for %s; run `storyqa target %s` first", args[0], args[0]), nil)
				}
				return err
			}
			if pageFilter > 0 {
				page, ok := m.Pages[pageFilter]
				if !ok {
					return services.Wrap(services.ErrNotFound, "cli", "manifest show", fmt.Sprintf("page %d not in manifest", pageFilter), nil)
				}
				m.Pages = map[int]manifest.Page{pageFilter: page}
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, m)
			}
			renderManifest(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().IntVar(&pageFilter, "page", 0, "Only show this page")
	return cmd
}

func newManifestMarkCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "mark <story-id> <issue-id> <status>",
		Short: "Advance an issue's repair status (in_grid, repaired, verified, failed)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := manifestStore(ctx)
			if err != nil {
				return err
			}
			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			status := issues.RepairStatus(strings.ToLower(strings.TrimSpace(args[2])))
			updated, err := store.UpdateIssue(runCtx, args[0], args[1], func(issue *issues.UnifiedIssue) error {
				if err := issue.Transition(status); err != nil {
					return services.Wrap(services.ErrValidation, "cli", "manifest mark", "", err)
				}
				issue.RecordAttempt(time.Now(), note)
				return nil
			})
			if errors.Is(err, manifest.ErrNoManifest) {
				return services.Wrap(services.ErrNotFound, "cli", "manifest mark", fmt.Sprintf("no manifest for %s", args[0]), nil)
			}
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (attempt %d)\n", updated.ID, updated.RepairStatus, len(updated.RepairAttempts))
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Note stored with the repair attempt")
	return cmd
}

func renderManifest(out io.Writer, m *manifest.Manifest) {
	var rows [][]string
	for _, number := range m.PageNumbers() {
		for _, issue := range m.Pages[number].Issues {
			thumb := ""
			if issue.Extraction != nil {
				thumb = issue.Extraction.ThumbnailPath
			}
			rows = append(rows, []string{
				strconv.Itoa(number),
				issue.ID,
				string(issue.Type),
				string(issue.Severity),
				string(issue.RepairStatus),
				thumb,
				truncate(issue.Description, descriptionWidth),
			})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintf(out, "No issues recorded for %s\n", m.StoryID)
		return
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Page", "ID", "Type", "Severity", "Status", "Thumbnail", "Description"},
		rows,
		[]columnAlignment{alignRight},
	))
	fmt.Fprintf(out, "%d issues across %d pages (updated %s)\n", m.IssueCount(), len(m.Pages), m.UpdatedAt.Local().Format(time.DateTime))
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}
