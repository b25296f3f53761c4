package dispatch

import (
	"sync"
	"time"

	"github.com/donnabot/donna/internal/envelope"
)

// defaultBufferSize bounds the recent-turn buffer per channel.
const defaultBufferSize = 10

// ChannelSession is the per-channel mutable state: the recent message
// buffer and the last origin channel seen. Created lazily, kept for the
// process lifetime.
type ChannelSession struct {
	ChannelID string

	mu         sync.Mutex
	turns      []envelope.Turn
	size       int
	lastOrigin string
}

// Append records one turn, evicting the oldest past the buffer bound.
func (c *ChannelSession) Append(author, text string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, envelope.Turn{Author: author, Text: text, At: at})
	if len(c.turns) > c.size {
		c.turns = c.turns[len(c.turns)-c.size:]
	}
}

// Recent returns a copy of the buffer, oldest first.
func (c *ChannelSession) Recent() []envelope.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]envelope.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// SetLastOrigin records where the channel's traffic last came from.
func (c *ChannelSession) SetLastOrigin(channelID string) {
	c.mu.Lock()
	c.lastOrigin = channelID
	c.mu.Unlock()
}

// LastOrigin returns the last origin channel, empty until first use.
func (c *ChannelSession) LastOrigin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOrigin
}

// Sessions is the lazy per-channel session table.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*ChannelSession
	size int
}

// NewSessions creates the table. bufferSize ≤ 0 uses the default.
func NewSessions(bufferSize int) *Sessions {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Sessions{byID: make(map[string]*ChannelSession), size: bufferSize}
}

// Get returns the channel's session, creating it on first use.
func (s *Sessions) Get(channelID string) *ChannelSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[channelID]
	if !ok {
		sess = &ChannelSession{ChannelID: channelID, size: s.size}
		s.byID[channelID] = sess
	}
	return sess
}

// Len reports how many channels have sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
