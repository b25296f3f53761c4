package reminders

import (
	"testing"
	"time"
)

func TestParseWhen(t *testing.T) {
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		when string
		want time.Time
	}{
		{"relative minutes", "in 20 minutes", now.Add(20 * time.Minute)},
		{"relative short unit", "in 5 mins", now.Add(5 * time.Minute)},
		{"relative hours", "in 2 hours", now.Add(2 * time.Hour)},
		{"relative fractional", "in 1.5 days", now.Add(36 * time.Hour)},
		{"relative weeks", "in 1 week", now.Add(7 * 24 * time.Hour)},
		{"tomorrow bare", "tomorrow", time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC)},
		{"tomorrow meridiem", "tomorrow 3pm", time.Date(2026, 1, 8, 15, 0, 0, 0, time.UTC)},
		{"tomorrow clock", "tomorrow 09:30", time.Date(2026, 1, 8, 9, 30, 0, 0, time.UTC)},
		{"clock later today", "14:30", time.Date(2026, 1, 7, 14, 30, 0, 0, time.UTC)},
		{"clock already past rolls over", "08:00", time.Date(2026, 1, 8, 8, 0, 0, 0, time.UTC)},
		{"meridiem later today", "11am", time.Date(2026, 1, 7, 11, 0, 0, 0, time.UTC)},
		{"noon", "12pm", time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)},
		{"midnight rolls over", "12am", time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)},
		{"rfc3339", "2026-02-01T08:00:00Z", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)},
		{"date and clock", "2026-02-01 08:00", time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)},
		{"mixed case", "In 10 Minutes", now.Add(10 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWhen(tt.when, now, time.UTC)
			if err != nil {
				t.Fatalf("ParseWhen(%q): %v", tt.when, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseWhen(%q) = %v, want %v", tt.when, got, tt.want)
			}
		})
	}
}

func TestParseWhenErrors(t *testing.T) {
	now := time.Date(2026, 1, 7, 10, 0, 0, 0, time.UTC)

	for _, when := range []string{
		"",
		"whenever",
		"in banana minutes",
		"in 5 fortnights",
		"tomorrow sometime",
		"9", // bare number without meridiem or minutes
		"25:00",
		"10:75",
	} {
		if _, err := ParseWhen(when, now, time.UTC); err == nil {
			t.Errorf("ParseWhen(%q) should fail", when)
		}
	}
}

func TestParseWhenTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatal(err)
	}
	// 15:00 UTC on Jan 7 is 10:00 in New York; "2pm" is later the same
	// local day, 19:00 UTC.
	now := time.Date(2026, 1, 7, 15, 0, 0, 0, time.UTC)
	got, err := ParseWhen("2pm", now, loc)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseWhen in TZ = %v, want %v", got, want)
	}
}

func TestFormatUntil(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30 seconds"},
		{time.Minute, "1 minute"},
		{20 * time.Minute, "20 minutes"},
		{90 * time.Minute, "1 hour"},
		{5 * time.Hour, "5.0 hours"},
		{30 * time.Hour, "1 day"},
		{72 * time.Hour, "3.0 days"},
	}
	for _, tt := range tests {
		if got := FormatUntil(tt.d); got != tt.want {
			t.Errorf("FormatUntil(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
