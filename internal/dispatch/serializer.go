// Package dispatch ties ingress, the envelope builder, the agent invoker,
// the response pipeline, and egress into the per-channel request path.
package dispatch

import (
	"context"
	"sync"
)

// SwitchSignal is called when consecutive acquisitions land on different
// channels. The default is inert.
type SwitchSignal func(prev, next string)

// Lease is a held channel slot. Release is mandatory on every exit path and
// idempotent.
type Lease struct {
	ChannelID string
	once      sync.Once
	release   func()
}

// Release frees the channel slot.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// Serializer grants at most one lease per channel at a time. Waiters block
// in FIFO order; a cancelled waiter aborts only its own acquisition.
type Serializer struct {
	mu       sync.Mutex
	slots    map[string]chan struct{}
	last     string
	onSwitch SwitchSignal
}

// NewSerializer creates a serializer. signal may be nil.
func NewSerializer(signal SwitchSignal) *Serializer {
	if signal == nil {
		signal = func(prev, next string) {}
	}
	return &Serializer{
		slots:    make(map[string]chan struct{}),
		onSwitch: signal,
	}
}

func (s *Serializer) slot(channelID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.slots[channelID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.slots[channelID] = ch
	}
	return ch
}

// Acquire blocks until the channel is free or ctx is cancelled. Blocked
// receivers queue in arrival order, so per-channel fairness is FIFO.
func (s *Serializer) Acquire(ctx context.Context, channelID string) (*Lease, error) {
	ch := s.slot(channelID)

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	if s.last != "" && s.last != channelID {
		s.onSwitch(s.last, channelID)
	}
	s.last = channelID
	s.mu.Unlock()

	return &Lease{
		ChannelID: channelID,
		release:   func() { <-ch },
	}, nil
}

// InFlight reports whether the channel currently holds a lease.
func (s *Serializer) InFlight(channelID string) bool {
	s.mu.Lock()
	ch, ok := s.slots[channelID]
	s.mu.Unlock()
	return ok && len(ch) == 1
}
