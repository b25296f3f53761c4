package reminders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps reminders in memory, for tests and storage-less runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*Reminder
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Reminder), now: time.Now}
}

func (s *MemoryStore) Create(ctx context.Context, userID, channelID, task string, runAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.rows[id] = &Reminder{
		ID:        id,
		UserID:    userID,
		ChannelID: channelID,
		Task:      task,
		RunAt:     runAt.UTC(),
		CreatedAt: s.now().UTC(),
		Status:    StatusPending,
	}
	return id, nil
}

func (s *MemoryStore) List(ctx context.Context, userID string) ([]*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Reminder
	for _, r := range s.rows {
		if r.UserID == userID && r.Status == StatusPending {
			out = append(out, cloneReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	return out, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, upd Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrNotPending
	}
	if upd.Task != nil {
		r.Task = *upd.Task
	}
	if upd.RunAt != nil {
		r.RunAt = upd.RunAt.UTC()
	}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status != StatusPending {
		return ErrNotPending
	}
	r.Status = StatusCancelled
	return nil
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Reminder
	for _, r := range s.rows {
		if r.Status == StatusPending && r.ClaimedBy == "" && !r.RunAt.After(now.UTC()) {
			out = append(out, cloneReminder(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAt.Before(out[j].RunAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Claim(ctx context.Context, id, token string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return false, nil
	}
	if r.Status != StatusPending || r.ClaimedBy != "" || r.RunAt.After(now.UTC()) {
		return false, nil
	}
	r.ClaimedBy = token
	r.Attempts++
	return true, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, id, token string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.ClaimedBy != token {
		return ErrNotPending
	}
	utc := at.UTC()
	r.Status = StatusDelivered
	r.DeliveredAt = &utc
	r.ClaimedBy = ""
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, id, token string, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if r.ClaimedBy != token {
		return ErrNotPending
	}
	r.ClaimedBy = ""
	if final {
		r.Status = StatusFailed
	}
	return nil
}
