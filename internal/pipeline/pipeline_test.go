package pipeline

import (
	"strings"
	"testing"
	"time"
)

func testPipeline() *Pipeline {
	return New(WithNow(func() time.Time {
		return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestProcessConversational(t *testing.T) {
	p := testPipeline()
	out := p.Process(Input{Body: "Sure — the train leaves at quarter past."})
	if out.Kind != OutcomeDelivered {
		t.Fatalf("kind = %s, want delivered", out.Kind)
	}
	if len(out.Messages) != 1 {
		t.Fatalf("want 1 message, got %d", len(out.Messages))
	}
	if out.Class != ClassConversational {
		t.Errorf("class = %s", out.Class)
	}
}

func TestProcessNoReply(t *testing.T) {
	p := testPipeline()
	out := p.Process(Input{Body: "  NO_REPLY \n"})
	if out.Kind != OutcomeSuppressed {
		t.Fatalf("kind = %s, want suppressed", out.Kind)
	}
	if len(out.Messages) != 0 {
		t.Errorf("suppressed outcome carries %d messages", len(out.Messages))
	}
}

func TestProcessEmpty(t *testing.T) {
	p := testPipeline()
	for _, body := range []string{"", "   \n\n  ", "\x1b[0m"} {
		out := p.Process(Input{Body: body})
		if out.Kind != OutcomeSuppressed {
			t.Errorf("Process(%q).Kind = %s, want suppressed", body, out.Kind)
		}
	}
}

func TestProcessRawBypassesSanitiser(t *testing.T) {
	p := testPipeline()
	raw := "⏺ Bash(ls)\n12.4k tokens · $0.03"
	out := p.Process(Input{Body: raw, Raw: true})
	if out.Kind != OutcomeDelivered {
		t.Fatalf("kind = %s, want delivered", out.Kind)
	}
	content := out.Messages[0].Content
	if !strings.HasPrefix(content, "```") || !strings.HasSuffix(content, "```") {
		t.Errorf("raw output should be fenced: %q", content)
	}
	if !strings.Contains(content, "⏺ Bash(ls)") {
		t.Errorf("raw output lost content: %q", content)
	}
}

func TestProcessRawStillChunked(t *testing.T) {
	p := testPipeline()
	out := p.Process(Input{Body: strings.Repeat("0123456789\n", 600), Raw: true})
	if out.Kind != OutcomeDelivered {
		t.Fatalf("kind = %s, want delivered", out.Kind)
	}
	if len(out.Messages) < 2 {
		t.Fatalf("6000+ chars should chunk, got %d messages", len(out.Messages))
	}
	for i, m := range out.Messages {
		if len(m.Content) > 2000 {
			t.Errorf("message %d is %d chars", i, len(m.Content))
		}
	}
}

func TestProcessTableEndsAsEmbed(t *testing.T) {
	p := testPipeline()
	out := p.Process(Input{Body: smallTable})
	if out.Kind != OutcomeDelivered {
		t.Fatalf("kind = %s", out.Kind)
	}
	var embed bool
	for _, m := range out.Messages {
		if m.Embed != nil {
			embed = true
			if m.Embed.Color == 0 {
				t.Error("embed missing class colour")
			}
			if m.Embed.Timestamp.IsZero() {
				t.Error("embed missing timestamp")
			}
		}
		if strings.Contains(m.Content, "|---") {
			t.Errorf("verbatim table leaked: %q", m.Content)
		}
	}
	if !embed {
		t.Error("small table should render as embed")
	}
}

func TestProcessStripsAgentNoise(t *testing.T) {
	p := testPipeline()
	body := "╭─────╮\n│ hdr │\n╰─────╯\n⏺ Read(notes.md)\nHere's the summary you asked for.\n4.1k tokens · $0.01"
	out := p.Process(Input{Body: body})
	if out.Kind != OutcomeDelivered {
		t.Fatalf("kind = %s", out.Kind)
	}
	if got := out.Messages[0].Content; got != "Here's the summary you asked for." {
		t.Errorf("noise survived: %q", got)
	}
}
