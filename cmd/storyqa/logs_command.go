package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/logging"
	"storyqa/internal/logs"
	"storyqa/internal/services"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var storyID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the storyqa log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			path := logging.FilePath(cfg)
			if path == "" {
				return services.Wrap(services.ErrConfiguration, "cli", "logs", "paths.log_dir is not set", nil)
			}
			if lines < 0 {
				return services.Wrap(services.ErrValidation, "cli", "logs", "--lines must be zero or greater", nil)
			}

			match := logs.StoryMatch(storyID)
			recent, offset, err := logs.Last(path, lines, match)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(recent) == 0 && !follow {
				fmt.Fprintf(out, "No log entries in %s\n", path)
				return nil
			}
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()
			return logs.Follow(runCtx, path, offset, 250*time.Millisecond, match, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&storyID, "story", "", "Only show lines for this story")
	return cmd
}
