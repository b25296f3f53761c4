package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SpecKind discriminates the three schedule grammar forms.
type SpecKind string

const (
	SpecCron     SpecKind = "cron"
	SpecTimes    SpecKind = "times"
	SpecInterval SpecKind = "interval"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Spec is one parsed schedule expression. The grammar accepts three forms:
//
//	5-field cron, optional trailing timezone:  "0 9 * * 1-5 Europe/London"
//	comma-separated clock list, optional TZ:   "08:00,12:30 Europe/London"
//	bounded interval, optional TZ:             "every 30m from 09:00 to 18:00"
type Spec struct {
	Kind SpecKind
	Raw  string
	Loc  *time.Location

	cronSched cron.Schedule
	times     []int // minutes of day, sorted
	every     time.Duration
	from, to  int // minutes of day
}

// ParseSpec parses a schedule expression. defaultLoc applies when the
// expression carries no timezone suffix.
func ParseSpec(raw string, defaultLoc *time.Location) (*Spec, error) {
	if defaultLoc == nil {
		defaultLoc = time.Local
	}
	raw = strings.TrimSpace(raw)
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, fmt.Errorf("schedule is required")
	}

	if strings.EqualFold(fields[0], "every") {
		return parseInterval(raw, fields, defaultLoc)
	}
	if strings.Contains(fields[0], ":") {
		return parseTimes(raw, fields, defaultLoc)
	}
	return parseCron(raw, fields, defaultLoc)
}

func parseCron(raw string, fields []string, defaultLoc *time.Location) (*Spec, error) {
	loc := defaultLoc
	switch len(fields) {
	case 5:
	case 6:
		tz, err := time.LoadLocation(fields[5])
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", fields[5], err)
		}
		loc = tz
		fields = fields[:5]
	default:
		return nil, fmt.Errorf("cron form wants 5 fields plus optional timezone, got %d", len(fields))
	}

	sched, err := cronParser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return &Spec{Kind: SpecCron, Raw: raw, Loc: loc, cronSched: sched}, nil
}

func parseTimes(raw string, fields []string, defaultLoc *time.Location) (*Spec, error) {
	loc := defaultLoc
	switch len(fields) {
	case 1:
	case 2:
		tz, err := time.LoadLocation(fields[1])
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", fields[1], err)
		}
		loc = tz
	default:
		return nil, fmt.Errorf("times form wants a clock list plus optional timezone")
	}

	var minutes []int
	for _, clock := range strings.Split(fields[0], ",") {
		m, err := parseClock(clock)
		if err != nil {
			return nil, err
		}
		minutes = append(minutes, m)
	}
	if len(minutes) == 0 {
		return nil, fmt.Errorf("times form wants at least one HH:MM")
	}
	sort.Ints(minutes)
	return &Spec{Kind: SpecTimes, Raw: raw, Loc: loc, times: minutes}, nil
}

// parseInterval handles "every <duration> from HH:MM to HH:MM [TZ]".
func parseInterval(raw string, fields []string, defaultLoc *time.Location) (*Spec, error) {
	if len(fields) < 6 || !strings.EqualFold(fields[2], "from") || !strings.EqualFold(fields[4], "to") {
		return nil, fmt.Errorf("interval form is \"every <duration> from HH:MM to HH:MM [timezone]\"")
	}
	loc := defaultLoc
	switch len(fields) {
	case 6:
	case 7:
		tz, err := time.LoadLocation(fields[6])
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", fields[6], err)
		}
		loc = tz
	default:
		return nil, fmt.Errorf("interval form has trailing tokens")
	}

	every, err := time.ParseDuration(fields[1])
	if err != nil {
		return nil, fmt.Errorf("interval duration %q: %w", fields[1], err)
	}
	if every < time.Minute {
		return nil, fmt.Errorf("interval %s below one minute", every)
	}
	from, err := parseClock(fields[3])
	if err != nil {
		return nil, err
	}
	to, err := parseClock(fields[5])
	if err != nil {
		return nil, err
	}
	if from >= to {
		return nil, fmt.Errorf("interval window %s..%s is empty", fields[3], fields[5])
	}
	return &Spec{Kind: SpecInterval, Raw: raw, Loc: loc, every: every, from: from, to: to}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Next returns the first firing strictly after the given time.
func (s *Spec) Next(after time.Time) time.Time {
	local := after.In(s.Loc)
	switch s.Kind {
	case SpecCron:
		return s.cronSched.Next(local)

	case SpecTimes:
		for day := 0; day <= 1; day++ {
			base := startOfDay(local.AddDate(0, 0, day))
			for _, m := range s.times {
				if t := base.Add(time.Duration(m) * time.Minute); t.After(local) {
					return t
				}
			}
		}

	case SpecInterval:
		for day := 0; day <= 1; day++ {
			base := startOfDay(local.AddDate(0, 0, day))
			for m := s.from; m <= s.to; m += int(s.every / time.Minute) {
				if t := base.Add(time.Duration(m) * time.Minute); t.After(local) {
					return t
				}
			}
		}
	}
	return time.Time{}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
