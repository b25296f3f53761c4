package schedule

import (
	"strings"
	"testing"
	"time"
)

const sampleDocument = `# Schedule

| Job | Skill | Schedule | Channel | Enabled |
|-----|-------|----------|---------|---------|
| morning-brief | daily-digest | 0 7 * * * | general | yes |
| late-check | night-watch | 23:30 | alerts !quiet | yes |
| market-pulse | markets | every 30m from 09:00 to 17:30 | trading +whatsapp | queue_one |
| paused | daily-digest | 0 12 * * * | general | no |
| broken | daily-digest | not a schedule | general | yes |
| morning-brief | daily-digest | 0 7 * * * | general | yes |
`

func TestParseDocument(t *testing.T) {
	bindings, warnings, errs := ParseDocument([]byte(sampleDocument), time.UTC)

	if len(bindings) != 4 {
		t.Fatalf("parsed %d bindings, want 4", len(bindings))
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Line == 0 || !strings.Contains(errs[0].Row, "not a schedule") {
		t.Errorf("error should carry line and row: %+v", errs[0])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "duplicate") {
		t.Errorf("warnings = %v, want one duplicate warning", warnings)
	}

	brief := bindings[0]
	if brief.Job != "morning-brief" || brief.Skill != "daily-digest" || brief.Channel != "general" {
		t.Errorf("first binding = %+v", brief)
	}
	if !brief.Enabled || brief.IgnoreQuiet || brief.Mirror || brief.QueueOne {
		t.Errorf("first binding flags = %+v", brief)
	}

	late := bindings[1]
	if !late.IgnoreQuiet {
		t.Error("!quiet flag not parsed")
	}
	if late.Channel != "alerts" {
		t.Errorf("channel = %q", late.Channel)
	}

	pulse := bindings[2]
	if !pulse.Mirror {
		t.Error("+whatsapp flag not parsed")
	}
	if !pulse.QueueOne || !pulse.Enabled {
		t.Errorf("queue_one flags = %+v", pulse)
	}

	if bindings[3].Enabled {
		t.Error("row marked no should be disabled")
	}

	for _, b := range bindings {
		if b.Hash == "" {
			t.Errorf("binding %s missing hash", b.Job)
		}
	}
}

func TestParseDocumentRowErrors(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"missing column", "| a | b | 0 7 * * * | general |"},
		{"empty job", "|  | b | 0 7 * * * | general | yes |"},
		{"empty skill", "| a |  | 0 7 * * * | general | yes |"},
		{"empty channel", "| a | b | 0 7 * * * |  | yes |"},
		{"unknown flag", "| a | b | 0 7 * * * | general ~loud | yes |"},
		{"flag without channel", "| a | b | 0 7 * * * | !quiet | yes |"},
		{"bad enabled", "| a | b | 0 7 * * * | general | maybe |"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, errs := ParseDocument([]byte(tt.row), time.UTC)
			if len(errs) != 1 {
				t.Errorf("got %d errors, want 1", len(errs))
			}
		})
	}
}

func TestParseDocumentIgnoresProse(t *testing.T) {
	doc := "Some notes.\n\nNot | a | table row\n\n| a | b | 08:00 | general | yes |\n"
	bindings, _, errs := ParseDocument([]byte(doc), time.UTC)
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(bindings) != 1 {
		t.Fatalf("parsed %d bindings, want 1", len(bindings))
	}
}

func TestQuietHours(t *testing.T) {
	clock := func(value string) time.Time {
		ts, err := time.ParseInLocation("15:04", value, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}

	wrap := QuietHours{start: 23 * 60, end: 6 * 60, loc: time.UTC}
	tests := []struct {
		at   string
		want bool
	}{
		{"23:00", true},
		{"23:30", true},
		{"00:15", true},
		{"05:59", true},
		{"06:00", false},
		{"12:00", false},
		{"22:59", false},
	}
	for _, tt := range tests {
		if got := wrap.Contains(clock(tt.at)); got != tt.want {
			t.Errorf("wrap.Contains(%s) = %v, want %v", tt.at, got, tt.want)
		}
	}

	day := QuietHours{start: 9 * 60, end: 17 * 60, loc: time.UTC}
	if !day.Contains(clock("12:00")) || day.Contains(clock("18:00")) {
		t.Error("non-wrapping window misbehaved")
	}

	var zero QuietHours
	if zero.Contains(clock("12:00")) {
		t.Error("zero-value window should never match")
	}

	empty := QuietHours{start: 8 * 60, end: 8 * 60, loc: time.UTC}
	if empty.Contains(clock("08:00")) {
		t.Error("equal start and end should disable the window")
	}
}
