package targeting

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"storyqa/internal/extract"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/manifest"
	"storyqa/internal/services"
)

const originalImageName = "original.jpg"

// PageInput is one rendered page. Detections are optional and only feed
// region backfill for incremental issues.
type PageInput struct {
	PageNumber int
	Image      []byte
	Detections *issues.PageDetections
}

// Input is everything known about one story's rendered pages.
type Input struct {
	StoryID string
	Pages   []PageInput
	Reports []issues.Report
}

// PageResult is the persisted outcome for one page.
type PageResult struct {
	PageNumber int                   `json:"pageNumber"`
	Issues     []issues.UnifiedIssue `json:"issues"`
	Normalized int                   `json:"normalized"`
	Dropped    int                   `json:"dropped"`
	Extracted  int                   `json:"extracted"`
	Error      string                `json:"error,omitempty"`
}

// Result summarizes a run across pages, in page order.
type Result struct {
	StoryID string       `json:"storyId"`
	Pages   []PageResult `json:"pages"`
}

// Failed counts pages that recorded an error.
func (r *Result) Failed() int {
	n := 0
	for _, p := range r.Pages {
		if p.Error != "" {
			n++
		}
	}
	return n
}

// IssueCount totals surviving issues.
func (r *Result) IssueCount() int {
	n := 0
	for _, p := range r.Pages {
		n += len(p.Issues)
	}
	return n
}

// Options configure a Runner.
type Options struct {
	DedupeThreshold         float64
	CharacterMatchThreshold float64
	PageConcurrency         int
	TypeMapper              *issues.TypeMapper
	Metrics                 *Metrics
}

// Runner folds reports through normalize, deduplicate, extract, and the
// manifest, one page at a time. Pages run concurrently; a page that fails
// never blocks the others.
type Runner struct {
	extractor *extract.Extractor
	store     *manifest.Store
	opts      Options
	logger    *slog.Logger
}

// NewRunner wires the pipeline stages.
func NewRunner(extractor *extract.Extractor, store *manifest.Store, opts Options, logger *slog.Logger) *Runner {
	if opts.DedupeThreshold <= 0 {
		opts.DedupeThreshold = issues.DefaultDedupeThreshold
	}
	if opts.CharacterMatchThreshold <= 0 {
		opts.CharacterMatchThreshold = 0.3
	}
	if opts.PageConcurrency <= 0 {
		opts.PageConcurrency = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	return &Runner{
		extractor: extractor,
		store:     store,
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "targeting"),
	}
}

// Metrics returns the runner's collectors.
func (r *Runner) Metrics() *Metrics {
	return r.opts.Metrics
}

type decodedPage struct {
	input PageInput
	image image.Image
	err   error
}

// Run processes every page that has an image or at least one issue.
func (r *Runner) Run(ctx context.Context, in Input) (*Result, error) {
	if err := manifest.ValidateStoryID(in.StoryID); err != nil {
		return nil, err
	}
	ctx = services.WithStoryID(ctx, in.StoryID)
	logger := logging.WithContext(ctx, r.logger)

	decoded, err := r.decodePages(ctx, in.Pages)
	if err != nil {
		return nil, err
	}

	contexts := make(map[int]issues.PageContext, len(decoded))
	for number, page := range decoded {
		pc := issues.PageContext{}
		if page.image != nil {
			bounds := page.image.Bounds()
			pc.Width, pc.Height = bounds.Dx(), bounds.Dy()
		}
		if page.input.Detections != nil {
			det := *page.input.Detections
			det.PageNumber = number
			pc.Characters = issues.BuildCharacterIndex(det, r.opts.CharacterMatchThreshold, r.logger)
		}
		contexts[number] = pc
	}

	normalizer := issues.NewNormalizer(r.logger, r.opts.TypeMapper, contexts)
	var all []issues.UnifiedIssue
	for _, report := range in.Reports {
		normalized := normalizer.Normalize(report)
		if report != nil {
			r.opts.Metrics.normalized.WithLabelValues(string(report.Source())).Add(float64(len(normalized)))
		}
		all = append(all, normalized...)
	}
	byPage := issues.GroupByPage(all)

	pageNumbers := make(map[int]struct{}, len(decoded)+len(byPage))
	for n := range decoded {
		pageNumbers[n] = struct{}{}
	}
	for n := range byPage {
		pageNumbers[n] = struct{}{}
	}
	ordered := make([]int, 0, len(pageNumbers))
	for n := range pageNumbers {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	result := &Result{StoryID: in.StoryID, Pages: make([]PageResult, len(ordered))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.PageConcurrency)
	for i, number := range ordered {
		page := decoded[number]
		pageIssues := byPage[number]
		g.Go(func() error {
			result.Pages[i] = r.processPage(services.WithPageNumber(gctx, number), in.StoryID, number, page, pageIssues)
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("repair targeting complete",
		logging.Int("pages", len(result.Pages)),
		logging.Int("issues", result.IssueCount()),
		logging.Int("failed_pages", result.Failed()),
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (r *Runner) decodePages(ctx context.Context, pages []PageInput) (map[int]decodedPage, error) {
	seen := make(map[int]struct{}, len(pages))
	for _, page := range pages {
		if page.PageNumber < 1 {
			return nil, services.Wrap(services.ErrValidation, "targeting", "decode pages", fmt.Sprintf("invalid page number %d", page.PageNumber), nil)
		}
		if _, dup := seen[page.PageNumber]; dup {
			return nil, services.Wrap(services.ErrValidation, "targeting", "decode pages", fmt.Sprintf("duplicate page %d", page.PageNumber), nil)
		}
		seen[page.PageNumber] = struct{}{}
	}

	entries := make([]decodedPage, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.PageConcurrency)
	for i, page := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry := decodedPage{input: page}
			if len(page.Image) > 0 {
				entry.image, entry.err = extract.Decode(page.Image)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	decoded := make(map[int]decodedPage, len(entries))
	for _, entry := range entries {
		decoded[entry.input.PageNumber] = entry
	}
	return decoded, nil
}

func (r *Runner) processPage(ctx context.Context, storyID string, number int, page decodedPage, pageIssues []issues.UnifiedIssue) PageResult {
	started := time.Now()
	logger := logging.WithContext(ctx, r.logger)
	res := PageResult{PageNumber: number, Normalized: len(pageIssues)}
	defer func() {
		r.opts.Metrics.pageTime.Observe(time.Since(started).Seconds())
		if res.Error != "" {
			r.opts.Metrics.pageFails.Inc()
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}

	kept := issues.Deduplicate(pageIssues, r.opts.DedupeThreshold)
	res.Dropped = len(pageIssues) - len(kept)
	r.opts.Metrics.dropped.Add(float64(res.Dropped))

	mpage := manifest.Page{PageNumber: number}
	if page.err != nil {
		res.Error = page.err.Error()
		logging.WarnWithContext(logger, "page image unreadable", "page_decode_failed",
			logging.Error(page.err),
			logging.String(logging.FieldImpact, "issues recorded without thumbnails"),
			logging.String(logging.FieldErrorHint, "re-export the page as JPEG or PNG"),
		)
	}
	if page.image != nil {
		bounds := page.image.Bounds()
		mpage.Width, mpage.Height = bounds.Dx(), bounds.Dy()
		if err := r.writeOriginal(storyID, number, page.image, &mpage); err != nil {
			res.Error = err.Error()
		} else {
			res.Extracted = r.extractAll(ctx, storyID, number, page.image, kept)
		}
	}
	r.opts.Metrics.skipped.Add(float64(len(kept) - res.Extracted))

	mpage.Issues = kept
	if _, err := r.store.UpdatePage(ctx, storyID, mpage); err != nil {
		res.Error = err.Error()
		logging.ErrorWithContext(logger, "manifest update failed", "manifest_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and free space"),
		)
	}
	res.Issues = kept
	logger.Debug("page targeted",
		logging.Int("normalized", res.Normalized),
		logging.Int("dropped", res.Dropped),
		logging.Int("extracted", res.Extracted),
		logging.Duration("elapsed", time.Since(started)),
	)
	return res
}

func (r *Runner) writeOriginal(storyID string, number int, img image.Image, mpage *manifest.Page) error {
	data, err := r.extractor.EncodeJPEG(img)
	if err != nil {
		return err
	}
	rel, _, err := r.store.WriteArtifact(storyID, number, originalImageName, data)
	if err != nil {
		return err
	}
	mpage.OriginalPath = rel
	return nil
}

// extractAll attaches thumbnails in place; k counts successful extractions.
func (r *Runner) extractAll(ctx context.Context, storyID string, number int, img image.Image, kept []issues.UnifiedIssue) int {
	logger := logging.WithContext(ctx, r.logger)
	k := 0
	for i := range kept {
		issue := &kept[i]
		if ctx.Err() != nil {
			return k
		}
		res, err := r.extractor.ExtractImage(img, *issue)
		if err != nil {
			if errors.Is(err, extract.ErrNoPixelBox) {
				logger.Debug("issue has no region to extract", logging.IssueID(issue.ID))
				continue
			}
			logging.WarnWithContext(logger, "thumbnail extraction failed", "extract_failed",
				logging.IssueID(issue.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "issue has no thumbnail"),
			)
			continue
		}
		k++
		rel, abs, err := r.store.WriteArtifact(storyID, number, manifest.ThumbnailName(k, issue.Type), res.Thumbnail)
		if err != nil {
			k--
			logging.WarnWithContext(logger, "thumbnail write failed", "thumbnail_write_failed",
				logging.IssueID(issue.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "issue has no thumbnail"),
			)
			continue
		}
		issue.Extraction = &issues.Extraction{ThumbnailPath: rel, AbsolutePath: abs, PaddedBox: res.PaddedBox}
		r.opts.Metrics.extracted.WithLabelValues(string(issue.Type)).Inc()
	}
	return k
}
