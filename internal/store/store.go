// Package store persists a history of converted runs in SQLite so token
// spend and step counts can be compared across runs.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/trajector/internal/trajectory"
)

//go:embed schema.sql
var schemaSQL string

// Run is one recorded conversion. Token fields are pointers mirroring
// the trajectory's final metrics: absent means no usage was reported.
type Run struct {
	ID               string
	SessionID        string
	ModelName        string
	LogPath          string
	TotalSteps       int
	PromptTokens     *int64
	CompletionTokens *int64
	CachedTokens     *int64
	CreatedAt        time.Time
}

// Store manages the SQLite run-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath and
// initializes the schema.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout first so the remaining pragmas wait on locks held by
	// a concurrently initializing process.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := execWithRetry(db, schemaSQL, 5, 10*time.Millisecond); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// execWithRetry retries an exec on "database is locked" errors with a
// linear backoff.
func execWithRetry(db *sql.DB, query string, attempts int, backoff time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if _, err = db.Exec(query); err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		time.Sleep(backoff * time.Duration(i+1))
	}
	return err
}

// Record inserts a history row for a converted trajectory and returns
// the generated run id.
func (s *Store) Record(traj *trajectory.Trajectory, logPath string) (string, error) {
	if traj == nil {
		return "", fmt.Errorf("cannot record nil trajectory")
	}

	id := uuid.New().String()
	var steps int
	var prompt, completion, cached *int64
	if traj.FinalMetrics != nil {
		steps = traj.FinalMetrics.TotalSteps
		prompt = traj.FinalMetrics.TotalPromptTokens
		completion = traj.FinalMetrics.TotalCompletionTokens
		cached = traj.FinalMetrics.TotalCachedTokens
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, session_id, model_name, log_path, total_steps, prompt_tokens, completion_tokens, cached_tokens, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, traj.SessionID, traj.Agent.ModelName, logPath, steps,
		nullableInt(prompt), nullableInt(completion), nullableInt(cached),
		time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return id, nil
}

// List returns the most recent runs, newest first. A limit of 0 returns
// all rows.
func (s *Store) List(limit int) ([]Run, error) {
	query := `SELECT id, session_id, model_name, log_path, total_steps, prompt_tokens, completion_tokens, cached_tokens, created_at
	          FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var prompt, completion, cached sql.NullInt64
		if err := rows.Scan(&run.ID, &run.SessionID, &run.ModelName, &run.LogPath,
			&run.TotalSteps, &prompt, &completion, &cached, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.PromptTokens = fromNullable(prompt)
		run.CompletionTokens = fromNullable(completion)
		run.CachedTokens = fromNullable(cached)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableInt(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

func fromNullable(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
