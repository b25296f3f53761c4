// Package capture persists raw agent output alongside the pipeline outcome
// for each request, for after-the-fact inspection of parsing behaviour.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder accepts capture rows. The dispatcher writes through this so the
// feature can be switched off without branching at every call site.
type Recorder interface {
	Record(ctx context.Context, c Capture) error
}

// Capture is one request's raw output and what the pipeline made of it.
type Capture struct {
	ID        string
	RequestID string
	Origin    string
	ChannelID string
	Class     string
	Outcome   string
	Detail    string
	RawBody   string
	CreatedAt time.Time
}

// Nop discards captures. Used when the feature is disabled.
type Nop struct{}

func (Nop) Record(ctx context.Context, c Capture) error { return nil }

const captureSchema = `
CREATE TABLE IF NOT EXISTS captures (
	id          TEXT PRIMARY KEY,
	request_id  TEXT NOT NULL,
	origin      TEXT NOT NULL,
	channel_id  TEXT NOT NULL,
	class       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	detail      TEXT NOT NULL,
	raw_body    TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_captures_created ON captures(created_at);
`

// Store is the SQLite-backed recorder.
type Store struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

// NewStore prepares the captures table. retentionDays bounds how long rows
// are kept; zero or negative falls back to 30 days.
func NewStore(db *sql.DB, retentionDays int) (*Store, error) {
	if _, err := db.Exec(captureSchema); err != nil {
		return nil, fmt.Errorf("create captures schema: %w", err)
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Store{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

// Record inserts one capture row. A zero ID or CreatedAt is filled in.
func (s *Store) Record(ctx context.Context, c Capture) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (id, request_id, origin, channel_id, class, outcome, detail, raw_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RequestID, c.Origin, c.ChannelID, c.Class, c.Outcome, c.Detail, c.RawBody, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	return nil
}

// Recent returns the newest captures, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, origin, channel_id, class, outcome, detail, raw_body, created_at
		FROM captures ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		if err := rows.Scan(&c.ID, &c.RequestID, &c.Origin, &c.ChannelID,
			&c.Class, &c.Outcome, &c.Detail, &c.RawBody, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the retention window.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune captures: %w", err)
	}
	return res.RowsAffected()
}
