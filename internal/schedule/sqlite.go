package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const executionSchema = `
CREATE TABLE IF NOT EXISTS job_executions (
	id           TEXT PRIMARY KEY,
	job          TEXT NOT NULL,
	skill        TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	status       TEXT NOT NULL,
	output       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_job_executions_job ON job_executions(job, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_job_executions_started ON job_executions(started_at);
`

// SQLiteExecutionStore persists job history in SQLite.
type SQLiteExecutionStore struct {
	db *sql.DB
}

// NewSQLiteExecutionStore opens the store over an existing database handle
// and creates the schema.
func NewSQLiteExecutionStore(db *sql.DB) (*SQLiteExecutionStore, error) {
	if _, err := db.Exec(executionSchema); err != nil {
		return nil, fmt.Errorf("init job_executions schema: %w", err)
	}
	return &SQLiteExecutionStore{db: db}, nil
}

// OpenDB opens the shared SQLite database file. SQLite allows one writer,
// so the pool is capped at a single connection.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *SQLiteExecutionStore) Record(ctx context.Context, exec *JobExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_executions (id, job, skill, started_at, completed_at, status, output, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.Job, exec.Skill, exec.StartedAt.UTC(), exec.CompletedAt.UTC(),
		string(exec.Status), exec.Output, exec.Error,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

func (s *SQLiteExecutionStore) LastByJob(ctx context.Context) (map[string]*JobExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, skill, started_at, completed_at, status, output, error
		FROM job_executions e
		WHERE started_at = (SELECT MAX(started_at) FROM job_executions WHERE job = e.job)
		GROUP BY job`)
	if err != nil {
		return nil, fmt.Errorf("query last executions: %w", err)
	}
	defer rows.Close()

	last := make(map[string]*JobExecution)
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		last[exec.Job] = exec
	}
	return last, rows.Err()
}

func (s *SQLiteExecutionStore) List(ctx context.Context, job string, limit int) ([]*JobExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job, skill, started_at, completed_at, status, output, error
		FROM job_executions
		WHERE job = ?
		ORDER BY started_at DESC
		LIMIT ?`, job, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*JobExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (s *SQLiteExecutionStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_executions WHERE started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune executions: %w", err)
	}
	return res.RowsAffected()
}

func scanExecution(rows *sql.Rows) (*JobExecution, error) {
	var exec JobExecution
	var status string
	if err := rows.Scan(&exec.ID, &exec.Job, &exec.Skill, &exec.StartedAt,
		&exec.CompletedAt, &status, &exec.Output, &exec.Error); err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	exec.Status = ExecutionStatus(status)
	return &exec, nil
}
