package schedule

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ExecutionStatus is the terminal state of one job firing.
type ExecutionStatus string

const (
	StatusOK         ExecutionStatus = "ok"
	StatusError      ExecutionStatus = "error"
	StatusSuppressed ExecutionStatus = "suppressed"
	StatusDropped    ExecutionStatus = "dropped"
)

// JobExecution records one firing of a scheduled job, including firings
// that never ran (suppressed by quiet hours, dropped on overlap).
type JobExecution struct {
	ID          string
	Job         string
	Skill       string
	StartedAt   time.Time
	CompletedAt time.Time
	Status      ExecutionStatus
	Output      string
	Error       string
}

// ExecutionStore persists job execution history.
type ExecutionStore interface {
	Record(ctx context.Context, exec *JobExecution) error
	// LastByJob returns the most recent execution per job name.
	LastByJob(ctx context.Context) (map[string]*JobExecution, error)
	// List returns executions for one job, newest first, capped at limit.
	List(ctx context.Context, job string, limit int) ([]*JobExecution, error)
	// Prune deletes executions older than the cutoff and returns the count.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}

// MemoryExecutionStore keeps execution history in memory, for tests and
// storage-less runs.
type MemoryExecutionStore struct {
	mu    sync.RWMutex
	order []*JobExecution
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{}
}

func (s *MemoryExecutionStore) Record(ctx context.Context, exec *JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, cloneExecution(exec))
	return nil
}

func (s *MemoryExecutionStore) LastByJob(ctx context.Context) (map[string]*JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := make(map[string]*JobExecution)
	for _, exec := range s.order {
		prev, ok := last[exec.Job]
		if !ok || exec.StartedAt.After(prev.StartedAt) {
			last[exec.Job] = cloneExecution(exec)
		}
	}
	return last, nil
}

func (s *MemoryExecutionStore) List(ctx context.Context, job string, limit int) ([]*JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*JobExecution
	for _, exec := range s.order {
		if exec.Job == job {
			out = append(out, cloneExecution(exec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryExecutionStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	var pruned int64
	for _, exec := range s.order {
		if exec.StartedAt.Before(olderThan) {
			pruned++
			continue
		}
		kept = append(kept, exec)
	}
	s.order = kept
	return pruned, nil
}

func cloneExecution(exec *JobExecution) *JobExecution {
	cp := *exec
	return &cp
}
