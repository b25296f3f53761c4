package reminders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const reminderSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	channel_id   TEXT NOT NULL,
	task_text    TEXT NOT NULL,
	run_at_utc   TIMESTAMP NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	delivered_at TIMESTAMP,
	status       TEXT NOT NULL DEFAULT 'pending',
	attempts     INTEGER NOT NULL DEFAULT 0,
	claimed_by   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(status, run_at_utc);
CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders(user_id, status);
`

// SQLiteStore persists reminders in SQLite. The claim step is a conditional
// UPDATE, so exactly one of any number of concurrent workers wins each row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the store over an existing database handle and
// creates the schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(reminderSchema); err != nil {
		return nil, fmt.Errorf("init reminders schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, userID, channelID, task string, runAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, user_id, channel_id, task_text, run_at_utc, created_at, status)
		VALUES (?, ?, ?, ?, ?, ?, 'pending')`,
		id, userID, channelID, task, runAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create reminder: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, task_text, run_at_utc, created_at, delivered_at, status, attempts, claimed_by
		FROM reminders
		WHERE user_id = ? AND status = 'pending'
		ORDER BY run_at_utc ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *SQLiteStore) Update(ctx context.Context, id string, upd Update) error {
	if upd.Task == nil && upd.RunAt == nil {
		return nil
	}

	query := "UPDATE reminders SET "
	var args []any
	if upd.Task != nil {
		query += "task_text = ?"
		args = append(args, *upd.Task)
	}
	if upd.RunAt != nil {
		if len(args) > 0 {
			query += ", "
		}
		query += "run_at_utc = ?"
		args = append(args, upd.RunAt.UTC())
	}
	query += " WHERE id = ? AND status = 'pending'"
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return s.affectedOrState(ctx, res, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET status = 'cancelled' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("cancel reminder: %w", err)
	}
	return s.affectedOrState(ctx, res, id)
}

// affectedOrState maps a zero-row conditional update to the right error.
func (s *SQLiteStore) affectedOrState(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM reminders WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrNotPending
}

func (s *SQLiteStore) Due(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, channel_id, task_text, run_at_utc, created_at, delivered_at, status, attempts, claimed_by
		FROM reminders
		WHERE status = 'pending' AND claimed_by = '' AND run_at_utc <= ?
		ORDER BY run_at_utc ASC
		LIMIT ?`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func (s *SQLiteStore) Claim(ctx context.Context, id, token string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET claimed_by = ?, attempts = attempts + 1
		WHERE id = ? AND status = 'pending' AND claimed_by = '' AND run_at_utc <= ?`,
		token, id, now.UTC())
	if err != nil {
		return false, fmt.Errorf("claim reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) MarkDelivered(ctx context.Context, id, token string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET status = 'delivered', delivered_at = ?, claimed_by = ''
		WHERE id = ? AND claimed_by = ?`,
		at.UTC(), id, token)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

func (s *SQLiteStore) Release(ctx context.Context, id, token string, final bool) error {
	status := "pending"
	if final {
		status = "failed"
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders
		SET claimed_by = '', status = ?
		WHERE id = ? AND claimed_by = ?`,
		status, id, token)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

func scanReminders(rows *sql.Rows) ([]*Reminder, error) {
	var out []*Reminder
	for rows.Next() {
		var r Reminder
		var status string
		var delivered sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.ChannelID, &r.Task, &r.RunAt,
			&r.CreatedAt, &delivered, &status, &r.Attempts, &r.ClaimedBy); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.Status = Status(status)
		if delivered.Valid {
			at := delivered.Time
			r.DeliveredAt = &at
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
