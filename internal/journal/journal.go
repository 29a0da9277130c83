// Package journal keeps an append-only history of every prompt attempt in a
// SQLite database next to the ledger. The JSON ledger holds only the latest
// RunItem per prompt; the journal answers "what happened on each try".
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Attempt is one journal row.
type Attempt struct {
	ID         int64
	RunID      string
	Project    string
	Prompt     string
	Attempt    int
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Outputs    []string
	Error      string
	SessionID  string
}

// Journal wraps the attempts database.
type Journal struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens the journal at <dir>/journal.db.
func Open(dir string) (*Journal, error) {
	dbPath := filepath.Join(dir, "journal.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, dbPath: dbPath}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		project TEXT NOT NULL,
		prompt TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		outputs_json TEXT,
		error TEXT,
		session_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_project ON attempts(project);
	CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record appends an attempt.
func (j *Journal) Record(ctx context.Context, a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	outputs, err := json.Marshal(a.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, project, prompt, attempt, status, started_at, finished_at, outputs_json, error, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.Project, a.Prompt, a.Attempt, a.Status,
		a.StartedAt.UTC(), a.FinishedAt.UTC(), string(outputs), a.Error, a.SessionID,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// List returns the most recent attempts for project, newest first.
// limit <= 0 returns everything.
func (j *Journal) List(ctx context.Context, project string, limit int) ([]Attempt, error) {
	query := `
		SELECT id, run_id, project, prompt, attempt, status, started_at, finished_at, outputs_json, error, session_id
		FROM attempts WHERE project = ? ORDER BY id DESC`
	args := []interface{}{project}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a           Attempt
			outputsJSON sql.NullString
			errText     sql.NullString
			sessionID   sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Project, &a.Prompt, &a.Attempt, &a.Status,
			&a.StartedAt, &a.FinishedAt, &outputsJSON, &errText, &sessionID); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if outputsJSON.Valid && outputsJSON.String != "" {
			_ = json.Unmarshal([]byte(outputsJSON.String), &a.Outputs)
		}
		a.Error = errText.String
		a.SessionID = sessionID.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountByRun returns attempts per status for one run.
func (j *Journal) CountByRun(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM attempts WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
