package pipeline

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "ansi escapes stripped",
			input: "\x1b[1mBold\x1b[0m text",
			want:  "Bold text",
		},
		{
			name:  "osc sequence stripped",
			input: "\x1b]0;window title\abody",
			want:  "body",
		},
		{
			name:  "box drawing banner removed",
			input: "╭───────────╮\n│ session   │\n╰───────────╯\nhello",
			want:  "hello",
		},
		{
			name:  "tool marker lines removed",
			input: "⏺ Bash(ls -la)\n⎿ 12 files\nDone listing.",
			want:  "Done listing.",
		},
		{
			name:  "bullet glyphs become dashes",
			input: "• first\n◦ second",
			want:  "- first\n- second",
		},
		{
			name:  "indented bullet keeps indent",
			input: "  • nested",
			want:  "  - nested",
		},
		{
			name:  "accounting lines removed",
			input: "Answer here.\n12.4k tokens · $0.03",
			want:  "Answer here.",
		},
		{
			name:  "permission prompt removed",
			input: "Do you want to proceed?\n1. Yes\n2. No\nfine",
			want:  "fine",
		},
		{
			name:  "blank runs collapse",
			input: "a\n\n\n\n\n\nb",
			want:  "a\n\n\nb",
		},
		{
			name:  "plain text untouched",
			input: "Just a normal answer\nwith two lines.",
			want:  "Just a normal answer\nwith two lines.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// genAgentOutput builds realistic raw agent output from line fragments.
func genAgentOutput() gopter.Gen {
	line := gen.OneConstOf(
		"Plain prose line with some detail.",
		"• bullet item",
		"◦ sub item",
		"⏺ Bash(git status)",
		"⎿ clean tree",
		"╭──────────╮",
		"│ banner   │",
		"12.4k tokens · $0.03",
		"Do you want to proceed?",
		"\x1b[32mgreen\x1b[0m output",
		"",
		"   ",
		"```go",
		"fmt.Println(\"hi\")",
		"```",
		"| a | b |",
		"|---|---|",
		"| 1 | 2 |",
	)
	return gen.SliceOf(line).Map(func(lines []string) string {
		return strings.Join(lines, "\n")
	})
}

func TestSanitizeIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("sanitize twice equals sanitize once", prop.ForAll(
		func(raw string) bool {
			once := Sanitize(raw)
			return Sanitize(once) == once
		},
		genAgentOutput(),
	))

	properties.Property("sanitized output never holds 3+ blank lines", prop.ForAll(
		func(raw string) bool {
			return !strings.Contains(Sanitize(raw), "\n\n\n\n")
		},
		genAgentOutput(),
	))

	properties.TestingRun(t)
}
