package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"storyqa/internal/services"
)

// Kind names the pipeline that produced a run.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTargeting  Kind = "targeting"
	KindFidelity   Kind = "fidelity"
)

// Run is one ledger row.
type Run struct {
	ID            string           `json:"id"`
	Kind          Kind             `json:"kind"`
	StoryID       string           `json:"storyId"`
	PageNumber    int              `json:"pageNumber,omitempty"`
	Outcome       services.Outcome `json:"outcome"`
	Passed        bool             `json:"passed"`
	Repaired      bool             `json:"repaired"`
	IssueCount    int              `json:"issueCount"`
	CriticalCount int              `json:"criticalCount"`
	Score         *int             `json:"score,omitempty"`
	Detail        string           `json:"detail,omitempty"`
	StartedAt     time.Time        `json:"startedAt"`
	FinishedAt    time.Time        `json:"finishedAt"`
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	StoryID string
	Kind    Kind
	Limit   int
}

// Store is the SQLite-backed run ledger.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "runlog", "open", "ledger path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path is the ledger file location.
func (s *Store) Path() string { return s.path }

// Fixed-width so lexical order in SQLite matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record inserts a run, assigning an ID and timestamps when unset.
func (s *Store) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Kind == "" || strings.TrimSpace(run.StoryID) == "" {
		return run, services.Wrap(services.ErrValidation, "runlog", "record", "run kind and story id are required", nil)
	}
	if run.Outcome == "" {
		run.Outcome = services.OutcomeOK
	}
	now := time.Now().UTC()
	if run.FinishedAt.IsZero() {
		run.FinishedAt = now
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	var score sql.NullInt64
	if run.Score != nil {
		score = sql.NullInt64{Int64: int64(*run.Score), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(id, kind, story_id, page_number, outcome, passed, repaired, issue_count, critical_count, score, detail, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.StoryID, run.PageNumber, string(run.Outcome),
		boolToInt(run.Passed), boolToInt(run.Repaired), run.IssueCount, run.CriticalCount, score, run.Detail,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return run, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// Recent returns runs newest first.
func (s *Store) Recent(ctx context.Context, filter Filter) ([]Run, error) {
	query := `SELECT id, kind, story_id, page_number, outcome, passed, repaired, issue_count, critical_count, score, detail, started_at, finished_at FROM runs`
	var clauses []string
	var args []any
	if filter.StoryID != "" {
		clauses = append(clauses, "story_id = ?")
		args = append(args, filter.StoryID)
	}
	if filter.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Summary counts runs by kind and outcome.
func (s *Store) Summary(ctx context.Context) (map[Kind]map[services.Outcome]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, outcome, COUNT(1) FROM runs GROUP BY kind, outcome`)
	if err != nil {
		return nil, fmt.Errorf("run summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[Kind]map[services.Outcome]int)
	for rows.Next() {
		var kind, outcome string
		var count int
		if err := rows.Scan(&kind, &outcome, &count); err != nil {
			return nil, err
		}
		if summary[Kind(kind)] == nil {
			summary[Kind(kind)] = make(map[services.Outcome]int)
		}
		summary[Kind(kind)][services.Outcome(outcome)] = count
	}
	return summary, rows.Err()
}

// Health describes the ledger for the status command.
type Health struct {
	Path           string
	Exists         bool
	Readable       bool
	IntegrityCheck bool
	TotalRuns      int
	Error          string
}

// CheckHealth pings the ledger and runs an integrity check.
func (s *Store) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{Path: s.path}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat ledger: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("ledger path %q is a directory", s.path)
	}
	health.Exists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping ledger: %w", err)
	}
	health.Readable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM runs").Scan(&health.TotalRuns); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count runs: %w", err)
	}
	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run                     Run
		kind, outcome           string
		passed, repaired        int
		score                   sql.NullInt64
		startedRaw, finishedRaw string
	)
	if err := row.Scan(&run.ID, &kind, &run.StoryID, &run.PageNumber, &outcome, &passed, &repaired,
		&run.IssueCount, &run.CriticalCount, &score, &run.Detail, &startedRaw, &finishedRaw); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Kind = Kind(kind)
	run.Outcome = services.Outcome(outcome)
	run.Passed = passed != 0
	run.Repaired = repaired != 0
	if score.Valid {
		v := int(score.Int64)
		run.Score = &v
	}
	run.StartedAt = parseTime(startedRaw)
	run.FinishedAt = parseTime(finishedRaw)
	return run, nil
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
