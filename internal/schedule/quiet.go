package schedule

import (
	"fmt"
	"time"

	"github.com/donnabot/donna/internal/config"
)

// QuietHours is the window during which scheduled jobs are suppressed
// unless a binding opts out. The window may wrap midnight.
type QuietHours struct {
	start, end int // minutes of day; equal means no window
	loc        *time.Location
}

// NewQuietHours builds the window from configuration.
func NewQuietHours(cfg config.QuietConfig) (QuietHours, error) {
	start, err := parseClock(cfg.Start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet start: %w", err)
	}
	end, err := parseClock(cfg.End)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet end: %w", err)
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet timezone: %w", err)
	}
	return QuietHours{start: start, end: end, loc: loc}, nil
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if q.loc == nil || q.start == q.end {
		return false
	}
	local := t.In(q.loc)
	m := local.Hour()*60 + local.Minute()
	if q.start < q.end {
		return m >= q.start && m < q.end
	}
	// Wraps midnight, e.g. 23:00..06:00.
	return m >= q.start || m < q.end
}
