package commands

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArgs string
	}{
		{"/status", "status", ""},
		{"/STATUS", "status", ""},
		{"  /remind in 2 hours to stretch  ", "remind", "in 2 hours to stretch"},
		{"/skill morning-brief", "skill", "morning-brief"},
		{"/reload-schedule", "reload-schedule", ""},
	}
	for _, tt := range tests {
		got := Parse(tt.text)
		if got == nil {
			t.Errorf("Parse(%q) = nil", tt.text)
			continue
		}
		if got.Name != tt.wantName || got.Args != tt.wantArgs {
			t.Errorf("Parse(%q) = {%q %q}, want {%q %q}",
				tt.text, got.Name, got.Args, tt.wantName, tt.wantArgs)
		}
	}

	for _, text := range []string{
		"",
		"hello there",
		"/ spaced",
		"/123",
		"a /status inline mention",
		"//double",
	} {
		if got := Parse(text); got != nil {
			t.Errorf("Parse(%q) = %+v, want nil", text, got)
		}
	}
}

func TestStripRawSuffix(t *testing.T) {
	tests := []struct {
		text     string
		want     string
		wantRaw  bool
	}{
		{"show me the file --raw", "show me the file", true},
		{"show me the file", "show me the file", false},
		{"--raw", "", true},
		{"the flag --raw  ", "the flag", true},
		{"raw deal", "raw deal", false},
	}
	for _, tt := range tests {
		got, raw := StripRawSuffix(tt.text)
		if got != tt.want || raw != tt.wantRaw {
			t.Errorf("StripRawSuffix(%q) = (%q, %v), want (%q, %v)",
				tt.text, got, raw, tt.want, tt.wantRaw)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	head, rest := SplitArgs("Cancel 42abc")
	if head != "cancel" || rest != "42abc" {
		t.Errorf("SplitArgs = (%q, %q)", head, rest)
	}
	head, rest = SplitArgs("  list  ")
	if head != "list" || rest != "" {
		t.Errorf("SplitArgs = (%q, %q)", head, rest)
	}
	if head, _ := SplitArgs(""); head != "" {
		t.Errorf("SplitArgs empty = %q", head)
	}
}
