// Package history records finished runs in a SQLite database so they can be
// listed and inspected after the process exits.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ormasoftchile/keystep/pkg/kernel/engine"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 50

// Run is one recorded execution.
type Run struct {
	ID        string            `json:"run_id"`
	Program   string            `json:"program"`
	Source    string            `json:"source,omitempty"` // file path, shortcut name or "api"
	Status    string            `json:"status"`
	Reason    string            `json:"reason"`
	PC        int               `json:"pc"`
	Steps     int               `json:"steps"`
	Error     string            `json:"error,omitempty"`
	Vars      map[string]string `json:"vars"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// FromResult builds a Run from an engine result.
func FromResult(program, source string, started time.Time, res *engine.RunResult) Run {
	r := Run{
		ID:        res.RunID,
		Program:   program,
		Source:    source,
		Status:    res.Status,
		Reason:    res.Reason,
		PC:        res.PC,
		Steps:     res.Steps,
		Vars:      res.Vars,
		StartedAt: started,
		Duration:  res.Duration,
	}
	if res.Error != nil {
		r.Error = res.Error.Error()
	}
	return r
}

// row is the database shape of a Run.
type row struct {
	ID         string         `db:"id"`
	Program    string         `db:"program"`
	Source     string         `db:"source"`
	Status     string         `db:"status"`
	Reason     string         `db:"reason"`
	PC         int            `db:"pc"`
	Steps      int            `db:"steps"`
	Error      sql.NullString `db:"error"`
	Vars       string         `db:"vars"`
	StartedAt  int64          `db:"started_at"`
	DurationMS int64          `db:"duration_ms"`
}

func (r row) run() (Run, error) {
	out := Run{
		ID:        r.ID,
		Program:   r.Program,
		Source:    r.Source,
		Status:    r.Status,
		Reason:    r.Reason,
		PC:        r.PC,
		Steps:     r.Steps,
		Error:     r.Error.String,
		StartedAt: time.UnixMilli(r.StartedAt).UTC(),
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
	}
	if err := json.Unmarshal([]byte(r.Vars), &out.Vars); err != nil {
		return Run{}, fmt.Errorf("decode vars of run %s: %w", r.ID, err)
	}
	return out, nil
}

// Store wraps a pooled sqlx.DB connection to the history database.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve history path: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", abs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runs (
                id TEXT PRIMARY KEY,
                program TEXT NOT NULL,
                source TEXT NOT NULL DEFAULT '',
                status TEXT NOT NULL,
                reason TEXT NOT NULL,
                pc INTEGER NOT NULL,
                steps INTEGER NOT NULL,
                error TEXT,
                vars TEXT NOT NULL,
                started_at INTEGER NOT NULL,
                duration_ms INTEGER NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at DESC);`,
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

// Record inserts or replaces a run.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.ID == "" {
		return errors.New("record run: run id is empty")
	}
	vars := r.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	encoded, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encode vars: %w", err)
	}
	rec := row{
		ID:         r.ID,
		Program:    r.Program,
		Source:     r.Source,
		Status:     r.Status,
		Reason:     r.Reason,
		PC:         r.PC,
		Steps:      r.Steps,
		Error:      sql.NullString{String: r.Error, Valid: r.Error != ""},
		Vars:       string(encoded),
		StartedAt:  r.StartedAt.UnixMilli(),
		DurationMS: r.Duration.Milliseconds(),
	}
	_, err = s.db.NamedExecContext(ctx, `INSERT OR REPLACE INTO runs
                (id, program, source, status, reason, pc, steps, error, vars, started_at, duration_ms)
                VALUES (:id, :program, :source, :status, :reason, :pc, :steps, :error, :vars, :started_at, :duration_ms)`, rec)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, `SELECT * FROM runs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Run{}, fmt.Errorf("select run: %w", err)
	}
	return r.run()
}

// Filter narrows List.
type Filter struct {
	Program string
	Status  string
	Limit   int // <= 0 means DefaultLimit
}

// List returns recorded runs, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Run, error) {
	query := `SELECT * FROM runs`
	var (
		where []string
		args  []any
	)
	if f.Program != "" {
		where = append(where, "program = ?")
		args = append(args, f.Program)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows := []row{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.run()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
