package reminders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?)$`)

// ParseWhen turns a natural-language time specification into an absolute
// UTC time. Accepted forms:
//
//	"in 20 minutes", "in 2 hours", "in 1.5 days"
//	"tomorrow 9am", "tomorrow 09:00"
//	"9am", "14:30" (today, rolling to tomorrow if already past)
//	RFC3339 and "2006-01-02 15:04" absolutes
func ParseWhen(when string, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	orig := strings.TrimSpace(when)
	when = strings.ToLower(orig)
	if when == "" {
		return time.Time{}, fmt.Errorf("time specification is required")
	}
	local := now.In(loc)

	if rest, ok := strings.CutPrefix(when, "in "); ok {
		d, err := parseRelative(rest)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d).UTC(), nil
	}

	if rest, ok := strings.CutPrefix(when, "tomorrow"); ok {
		rest = strings.TrimSpace(rest)
		hour, minute := 9, 0 // bare "tomorrow" means the next morning
		if rest != "" {
			var err error
			if hour, minute, err = parseClockWord(rest); err != nil {
				return time.Time{}, err
			}
		}
		t := time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
		return t.UTC(), nil
	}

	if hour, minute, err := parseClockWord(when); err == nil {
		t := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
		if !t.After(local) {
			t = t.AddDate(0, 0, 1)
		}
		return t.UTC(), nil
	}

	// Layout literals are case-sensitive, so absolutes parse from the
	// original spelling.
	for _, format := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(format, orig, loc); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("could not parse time %q", orig)
}

func parseRelative(s string) (time.Duration, error) {
	matches := relativePattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, fmt.Errorf("invalid relative time %q", s)
	}
	amount, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", matches[1])
	}

	unit := matches[2]
	switch {
	case strings.HasPrefix(unit, "sec"):
		return time.Duration(amount * float64(time.Second)), nil
	case strings.HasPrefix(unit, "min"):
		return time.Duration(amount * float64(time.Minute)), nil
	case strings.HasPrefix(unit, "hour"), strings.HasPrefix(unit, "hr"):
		return time.Duration(amount * float64(time.Hour)), nil
	case strings.HasPrefix(unit, "day"):
		return time.Duration(amount * float64(24*time.Hour)), nil
	case strings.HasPrefix(unit, "week"):
		return time.Duration(amount * float64(7*24*time.Hour)), nil
	}
	return 0, fmt.Errorf("unknown unit %q", unit)
}

var clockPattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)

// parseClockWord reads "9am", "3:30pm", "14:30".
func parseClockWord(s string) (hour, minute int, err error) {
	matches := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return 0, 0, fmt.Errorf("invalid clock %q", s)
	}
	hour, _ = strconv.Atoi(matches[1])
	if matches[2] != "" {
		minute, _ = strconv.Atoi(matches[2])
	}
	switch matches[3] {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "":
		// 24-hour form needs an explicit minute; a bare "9" is ambiguous.
		if matches[2] == "" {
			return 0, 0, fmt.Errorf("ambiguous clock %q", s)
		}
	}
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("clock %q out of range", s)
	}
	return hour, minute, nil
}

// FormatUntil renders the distance to a reminder for confirmations.
func FormatUntil(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", mins)
	case d < 24*time.Hour:
		if d.Hours() < 2 {
			return "1 hour"
		}
		return fmt.Sprintf("%.1f hours", d.Hours())
	default:
		days := d.Hours() / 24
		if days < 2 {
			return "1 day"
		}
		return fmt.Sprintf("%.1f days", days)
	}
}
