package dispatch

import (
	"testing"
	"time"
)

func TestSessionBufferBounded(t *testing.T) {
	sessions := NewSessions(3)
	sess := sessions.Get("chan-1")

	base := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three", "four", "five"} {
		sess.Append("dana", text, base.Add(time.Duration(i)*time.Minute))
	}

	recent := sess.Recent()
	if len(recent) != 3 {
		t.Fatalf("buffer size = %d, want 3", len(recent))
	}
	if recent[0].Text != "three" || recent[2].Text != "five" {
		t.Errorf("buffer contents = %v", recent)
	}
}

func TestSessionRecentIsACopy(t *testing.T) {
	sessions := NewSessions(5)
	sess := sessions.Get("chan-1")
	sess.Append("dana", "hello", time.Now())

	recent := sess.Recent()
	recent[0].Text = "mutated"
	if sess.Recent()[0].Text != "hello" {
		t.Error("Recent leaked internal state")
	}
}

func TestSessionsLazyAndStable(t *testing.T) {
	sessions := NewSessions(0)
	if sessions.Len() != 0 {
		t.Error("table not empty at start")
	}
	a := sessions.Get("chan-1")
	b := sessions.Get("chan-1")
	if a != b {
		t.Error("Get returned different sessions for one channel")
	}
	sessions.Get("chan-2")
	if sessions.Len() != 2 {
		t.Errorf("Len = %d, want 2", sessions.Len())
	}
	if a.size != defaultBufferSize {
		t.Errorf("default size = %d", a.size)
	}
}

func TestSessionLastOrigin(t *testing.T) {
	sess := &ChannelSession{ChannelID: "chan-1", size: 3}
	if sess.LastOrigin() != "" {
		t.Error("last origin should start empty")
	}
	sess.SetLastOrigin("chan-1")
	if sess.LastOrigin() != "chan-1" {
		t.Errorf("last origin = %q", sess.LastOrigin())
	}
}
