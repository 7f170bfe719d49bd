package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run statuses
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Database wraps SQLite connection
type Database struct {
	db *sql.DB
}

// RunRecord represents one CLI operation in the journal
type RunRecord struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Label       string     `json:"label,omitempty"`
	Status      string     `json:"status"`
	Detail      string     `json:"detail,omitempty"` // JSON string
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Duration returns how long the run took, or zero while it is still running.
func (r RunRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

// initSchema creates the necessary tables
func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		label TEXT,
		status TEXT NOT NULL,
		detail TEXT,
		error TEXT,
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
	`

	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// StartRun inserts a running record and returns its generated id
func (d *Database) StartRun(kind, label string) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO runs (id, kind, label, status, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := d.db.Exec(query, id, kind, label, StatusRunning, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run finished. A non-nil runErr marks it failed.
func (d *Database) CompleteRun(id string, detail interface{}, runErr error) error {
	var detailJSON sql.NullString
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("failed to marshal run detail: %w", err)
		}
		detailJSON = sql.NullString{String: string(b), Valid: true}
	}

	status := StatusCompleted
	var errText sql.NullString
	if runErr != nil {
		status = StatusFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	query := `
		UPDATE runs
		SET status = ?, detail = ?, error = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := d.db.Exec(query, status, detailJSON, errText, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

const runColumns = `id, kind, label, status, detail, error, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var label, detail, errText sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.Kind,
		&label,
		&run.Status,
		&detail,
		&errText,
		&run.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return run, err
	}

	run.Label = label.String
	run.Detail = detail.String
	run.Error = errText.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID. It returns nil when no run matches.
func (d *Database) GetRun(id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(d.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by kind
func (d *Database) ListRuns(kind string, limit, offset int) ([]RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	args := []interface{}{}

	if kind != "" && kind != "all" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// CountRuns returns the number of runs with the given status
func (d *Database) CountRuns(status string) (int, error) {
	query := `SELECT COUNT(*) FROM runs WHERE 1=1`
	args := []interface{}{}

	if status != "" && status != "all" {
		query += ` AND status = ?`
		args = append(args, status)
	}

	var count int
	err := d.db.QueryRow(query, args...).Scan(&count)
	return count, err
}
