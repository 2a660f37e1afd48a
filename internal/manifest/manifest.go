package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"storyqa/internal/fileutil"
	"storyqa/internal/issues"
	"storyqa/internal/logging"
	"storyqa/internal/services"
)

const (
	manifestFile  = "manifest.json"
	lockFile      = ".manifest.lock"
	schemaVersion = 1
	lockRetry     = 50 * time.Millisecond
)

// ErrNoManifest is returned by Load when the story has no manifest yet.
var ErrNoManifest = errors.New("manifest not found")

// Page is the persisted record for one page.
type Page struct {
	PageNumber   int                   `json:"pageNumber"`
	OriginalPath string                `json:"originalPath,omitempty"`
	Width        int                   `json:"width,omitempty"`
	Height       int                   `json:"height,omitempty"`
	Issues       []issues.UnifiedIssue `json:"issues"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// Manifest is the per-story record of issues and their thumbnails.
type Manifest struct {
	Version   int          `json:"version"`
	StoryID   string       `json:"storyId"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Pages     map[int]Page `json:"pages"`
}

// PageNumbers returns the recorded pages in ascending order.
func (m *Manifest) PageNumbers() []int {
	numbers := make([]int, 0, len(m.Pages))
	for n := range m.Pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// IssueCount totals issues across pages.
func (m *Manifest) IssueCount() int {
	total := 0
	for _, page := range m.Pages {
		total += len(page.Issues)
	}
	return total
}

// Store reads and writes manifests under <root>/<storyId>/issues.
type Store struct {
	root   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at the stories directory.
func NewStore(root string, logger *slog.Logger) *Store {
	return &Store{
		root:   root,
		logger: logging.NewComponentLogger(logger, "manifest"),
		now:    time.Now,
	}
}

// ValidateStoryID rejects identifiers that would escape the stories directory.
func ValidateStoryID(storyID string) error {
	trimmed := strings.TrimSpace(storyID)
	if trimmed == "" || trimmed != storyID || trimmed == "." || trimmed == ".." ||
		strings.ContainsAny(storyID, `/\`) || strings.ContainsRune(storyID, 0) {
		return services.Wrap(services.ErrValidation, "manifest", "validate story id", fmt.Sprintf("invalid story id %q", storyID), nil)
	}
	return nil
}

// IssuesDir is the directory holding a story's manifest and artifacts.
func (s *Store) IssuesDir(storyID string) string {
	return filepath.Join(s.root, storyID, "issues")
}

// ManifestPath is the manifest file location for a story.
func (s *Store) ManifestPath(storyID string) string {
	return filepath.Join(s.IssuesDir(storyID), manifestFile)
}

// PageDir is where a page's original image and thumbnails live.
func (s *Store) PageDir(storyID string, page int) string {
	return filepath.Join(s.IssuesDir(storyID), fmt.Sprintf("page%d", page))
}

// ThumbnailName is the file name for the k-th (1-based) thumbnail of a page.
func ThumbnailName(k int, issueType issues.Type) string {
	return fmt.Sprintf("issue_%d_%s.jpg", k, issueType)
}

// Load reads a story manifest. A missing file yields ErrNoManifest.
func (s *Store) Load(storyID string) (*Manifest, error) {
	if err := ValidateStoryID(storyID); err != nil {
		return nil, err
	}
	return s.read(storyID)
}

func (s *Store) read(storyID string) (*Manifest, error) {
	path := s.ManifestPath(storyID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", storyID, ErrNoManifest)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Pages == nil {
		m.Pages = make(map[int]Page)
	}
	return &m, nil
}

// UpdatePage replaces one page's record, leaving other pages untouched. The
// read-modify-write runs under a per-story file lock.
func (s *Store) UpdatePage(ctx context.Context, storyID string, page Page) (*Manifest, error) {
	if err := ValidateStoryID(storyID); err != nil {
		return nil, err
	}
	if page.PageNumber < 1 {
		return nil, services.Wrap(services.ErrValidation, "manifest", "update page", fmt.Sprintf("invalid page number %d", page.PageNumber), nil)
	}
	var updated *Manifest
	err := s.withLock(ctx, storyID, func() error {
		m, err := s.read(storyID)
		if err != nil {
			if !errors.Is(err, ErrNoManifest) {
				return err
			}
			m = &Manifest{StoryID: storyID, Pages: make(map[int]Page)}
		}
		now := s.now().UTC()
		if page.Issues == nil {
			page.Issues = []issues.UnifiedIssue{}
		}
		page.UpdatedAt = now
		m.Version = schemaVersion
		m.StoryID = storyID
		m.UpdatedAt = now
		m.Pages[page.PageNumber] = page
		if err := s.write(storyID, m); err != nil {
			return err
		}
		updated = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("manifest page updated",
		logging.StoryID(storyID),
		logging.Page(page.PageNumber),
		logging.Int("issue_count", len(page.Issues)),
	)
	return updated, nil
}

// UpdateIssue applies fn to one issue under the story lock and persists the
// result. fn errors abort the write.
func (s *Store) UpdateIssue(ctx context.Context, storyID, issueID string, fn func(*issues.UnifiedIssue) error) (issues.UnifiedIssue, error) {
	if err := ValidateStoryID(storyID); err != nil {
		return issues.UnifiedIssue{}, err
	}
	var updated issues.UnifiedIssue
	err := s.withLock(ctx, storyID, func() error {
		m, err := s.read(storyID)
		if err != nil {
			return err
		}
		for number, page := range m.Pages {
			for i := range page.Issues {
				if page.Issues[i].ID != issueID {
					continue
				}
				if err := fn(&page.Issues[i]); err != nil {
					return err
				}
				now := s.now().UTC()
				page.UpdatedAt = now
				m.Pages[number] = page
				m.UpdatedAt = now
				updated = page.Issues[i]
				return s.write(storyID, m)
			}
		}
		return services.Wrap(services.ErrNotFound, "manifest", "update issue", fmt.Sprintf("issue %q not in story %s", issueID, storyID), nil)
	})
	if err != nil {
		return issues.UnifiedIssue{}, err
	}
	s.logger.Debug("manifest issue updated",
		logging.StoryID(storyID),
		logging.IssueID(issueID),
		logging.String("repair_status", string(updated.RepairStatus)),
	)
	return updated, nil
}

// Save overwrites the whole manifest.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	if m == nil {
		return errors.New("save manifest: nil manifest")
	}
	if err := ValidateStoryID(m.StoryID); err != nil {
		return err
	}
	return s.withLock(ctx, m.StoryID, func() error {
		m.Version = schemaVersion
		m.UpdatedAt = s.now().UTC()
		if m.Pages == nil {
			m.Pages = make(map[int]Page)
		}
		return s.write(m.StoryID, m)
	})
}

func (s *Store) write(storyID string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.ManifestPath(storyID), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// WriteArtifact stores an image under the page directory and returns its
// path relative to the issues directory plus the absolute path.
func (s *Store) WriteArtifact(storyID string, page int, name string, data []byte) (string, string, error) {
	if err := ValidateStoryID(storyID); err != nil {
		return "", "", err
	}
	if name == "" || name != filepath.Base(name) {
		return "", "", services.Wrap(services.ErrValidation, "manifest", "write artifact", fmt.Sprintf("invalid artifact name %q", name), nil)
	}
	abs := filepath.Join(s.PageDir(storyID, page), name)
	if err := fileutil.WriteFileAtomic(abs, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write artifact %s: %w", name, err)
	}
	rel, err := filepath.Rel(s.IssuesDir(storyID), abs)
	if err != nil {
		return "", "", fmt.Errorf("relative artifact path: %w", err)
	}
	return filepath.ToSlash(rel), abs, nil
}

func (s *Store) withLock(ctx context.Context, storyID string, fn func() error) error {
	dir := s.IssuesDir(storyID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create issues directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return fmt.Errorf("acquire manifest lock: %w", err)
	}
	if !locked {
		return services.Wrap(services.ErrTimeout, "manifest", "acquire lock", "manifest lock not acquired", ctx.Err())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(s.logger, "manifest unlock failed", "manifest_unlock_failed",
				logging.StoryID(storyID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "later writers may wait for the lock"),
			)
		}
	}()
	return fn()
}
