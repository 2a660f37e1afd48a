package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"storyqa/internal/extract"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/manifest"
	"storyqa/internal/runlog"
	"storyqa/internal/services"
	"storyqa/internal/targeting"
)

var pageFilePattern = regexp.MustCompile(`(?i)^page[_-]?(\d+)\.(png|jpe?g)$`)

type targetOptions struct {
	pagesDir    string
	composition []string
	incremental []string
	final       []string
	detections  []string
}

func newTargetCommand(ctx *commandContext) *cobra.Command {
	var opts targetOptions

	cmd := &cobra.Command{
		Use:   "target <story-id>",
		Short: "Normalize evaluator reports into repair targets with thumbnails",
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
			storyID := args[0]
			if err := manifest.ValidateStoryID(storyID); err != nil {
				return err
			}

			input, err := loadTargetInput(storyID, opts)
			if err != nil {
				return err
			}
			mapper, err := issues.LoadTypeGlossary(cfg.Issues.TypeGlossaryPath)
			if err != nil {
				return services.Wrap(services.ErrConfiguration, "cli", "load type glossary", cfg.Issues.TypeGlossaryPath, err)
			}

			extractor := extract.New(extract.Options{
				ThumbnailSize:    cfg.Extraction.ThumbnailSize,
				MinWidthFraction: cfg.Extraction.MinWidthFraction,
				JPEGQuality:      cfg.Extraction.JPEGQuality,
				DefaultPadding:   cfg.Extraction.DefaultPadding,
				Padding:          cfg.Extraction.Padding,
			})
			store := manifest.NewStore(cfg.StoriesDir(), logger)
			runner := targeting.NewRunner(extractor, store, targeting.Options{
				DedupeThreshold:         cfg.Issues.DedupeIoUThreshold,
				CharacterMatchThreshold: cfg.Issues.CharacterMatchThreshold,
				PageConcurrency:         cfg.Pipeline.PageConcurrency,
				TypeMapper:              mapper,
			}, logger)

			runCtx, cancel := ctx.runContext(cmd)
			defer cancel()

			started := time.Now().UTC()
			result, runErr := runner.Run(runCtx, input)
			run := runlog.Run{
				Kind:       runlog.KindTargeting,
				StoryID:    storyID,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
			}
			if result != nil {
				run.IssueCount = result.IssueCount()
				run.CriticalCount = countCriticalIssues(result)
				run.Passed = result.Failed() == 0
				if failed := result.Failed(); failed > 0 {
					run.Detail = fmt.Sprintf("%d pages failed", failed)
				}
			}
			run.Outcome = outcomeFor(runErr, result != nil && result.Failed() > 0)
			if runErr != nil {
				run.Detail = runErr.Error()
			}
			ctx.recordRun(runCtx, run)

			if path := cfg.Pipeline.MetricsPath; path != "" {
				if err := runner.Metrics().WriteTextfile(path); err != nil {
					logging.WarnWithContext(logger, "metrics not written", "metrics_write_failed",
						logging.String("path", path),
						logging.Error(err),
						logging.String(logging.FieldImpact, "textfile collector shows stale values"),
					)
				}
			}
			if runErr != nil {
				return runErr
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			renderTargeting(cmd.OutOrStdout(), result, store.ManifestPath(storyID))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.pagesDir, "pages", "", "Directory of rendered pages named page<N>.png or page<N>.jpg")
	cmd.Flags().StringArrayVar(&opts.composition, "composition", nil, "Composition report JSON (object or array; repeatable)")
	cmd.Flags().StringArrayVar(&opts.incremental, "incremental", nil, "Incremental consistency report JSON (object or array; repeatable)")
	cmd.Flags().StringArrayVar(&opts.final, "final", nil, "Final consistency report JSON (repeatable)")
	cmd.Flags().StringArrayVar(&opts.detections, "detections", nil, "Face and body detections JSON per page (object or array; repeatable)")
	return cmd
}

func loadTargetInput(storyID string, opts targetOptions) (targeting.Input, error) {
	input := targeting.Input{StoryID: storyID}

	pages, err := loadPages(opts.pagesDir)
	if err != nil {
		return input, err
	}
	detections, err := loadDetections(opts.detections)
	if err != nil {
		return input, err
	}
	input.Pages = attachDetections(pages, detections)

	for _, group := range []struct {
		source issues.Source
		paths  []string
	}{
		{issues.SourceComposition, opts.composition},
		{issues.SourceIncremental, opts.incremental},
		{issues.SourceFinal, opts.final},
	} {
		for _, path := range group.paths {
			reports, err := loadReports(group.source, path)
			if err != nil {
				return input, err
			}
			input.Reports = append(input.Reports, reports...)
		}
	}
	return input, nil
}

// attachDetections pairs detections with page images. Pages that only have
// detections still get an entry so their character index is built.
func attachDetections(pages []targeting.PageInput, detections map[int]issues.PageDetections) []targeting.PageInput {
	for i := range pages {
		if det, ok := detections[pages[i].PageNumber]; ok {
			pages[i].Detections = &det
			delete(detections, pages[i].PageNumber)
		}
	}
	for number, det := range detections {
		pages = append(pages, targeting.PageInput{PageNumber: number, Detections: &det})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages
}

func loadPages(dir string) ([]targeting.PageInput, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "cli", "read pages", dir, err)
	}
	var pages []targeting.PageInput
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pageFilePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		number, err := strconv.Atoi(match[1])
		if err != nil || number < 1 {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "cli", "read page", entry.Name(), err)
		}
		pages = append(pages, targeting.PageInput{PageNumber: number, Image: data})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

// jsonItems returns the elements of a top-level array, or the whole document
// when it is an object.
func jsonItems(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	return []json.RawMessage{trimmed}, nil
}

func loadReports(source issues.Source, path string) ([]issues.Report, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "cli", "read report", path, err)
	}
	items, err := jsonItems(data)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "cli", "parse report", path, err)
	}
	reports := make([]issues.Report, 0, len(items))
	for _, item := range items {
		report, err := issues.DecodeReport(source, item)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "cli", "parse report", path, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func loadDetections(paths []string) (map[int]issues.PageDetections, error) {
	out := map[int]issues.PageDetections{}
	for _, path := range paths {
		data, err := readInput(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "cli", "read detections", path, err)
		}
		items, err := jsonItems(data)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "cli", "parse detections", path, err)
		}
		for _, item := range items {
			var det issues.PageDetections
			if err := json.Unmarshal(item, &det); err != nil {
				return nil, services.Wrap(services.ErrValidation, "cli", "parse detections", path, err)
			}
			if det.PageNumber < 1 {
				return nil, services.Wrap(services.ErrValidation, "cli", "parse detections", fmt.Sprintf("%s: pageNumber must be positive", path), nil)
			}
			out[det.PageNumber] = det
		}
	}
	return out, nil
}

func countCriticalIssues(result *targeting.Result) int {
	n := 0
	for _, page := range result.Pages {
		for _, issue := range page.Issues {
			if issue.Severity == issues.SeverityCritical {
				n++
			}
		}
	}
	return n
}

func renderTargeting(out io.Writer, result *targeting.Result, manifestPath string) {
	rows := make([][]string, 0, len(result.Pages))
	for _, page := range result.Pages {
		rows = append(rows, []string{
			strconv.Itoa(page.PageNumber),
			strconv.Itoa(page.Normalized),
			strconv.Itoa(page.Dropped),
			strconv.Itoa(len(page.Issues)),
			strconv.Itoa(page.Extracted),
			page.Error,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Page", "Reported", "Duplicates", "Kept", "Thumbnails", "Error"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d issues across %d pages; manifest %s\n", result.IssueCount(), len(result.Pages), manifestPath)
}
