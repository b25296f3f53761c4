package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestChunkShortTextSingle(t *testing.T) {
	c := NewChunker()
	chunks := c.Chunk("hello world")
	if len(chunks) != 1 || chunks[0] != "hello world" {
		t.Fatalf("got %v, want single unchanged chunk", chunks)
	}
}

func TestChunkEmpty(t *testing.T) {
	c := NewChunker()
	if chunks := c.Chunk("   \n  "); chunks != nil {
		t.Fatalf("blank input should yield no chunks, got %v", chunks)
	}
}

func TestChunkPrefersParagraphBreak(t *testing.T) {
	c := &Chunker{MaxSize: 100, MaxLines: 50}
	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 60)
	chunks := c.Chunk(first + "\n\n" + second)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0] != first || chunks[1] != second {
		t.Errorf("split did not land on the paragraph break: %q / %q", chunks[0], chunks[1])
	}
}

func TestChunkNumbering(t *testing.T) {
	c := &Chunker{MaxSize: 100, MaxLines: 50}
	var paragraphs []string
	for i := 0; i < 5; i++ {
		paragraphs = append(paragraphs, strings.Repeat("x", 80))
	}
	chunks := c.Chunk(strings.Join(paragraphs, "\n\n"))
	if len(chunks) < 3 {
		t.Fatalf("expected 3+ chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		suffix := fmt.Sprintf("-# (%d/%d)", i+1, len(chunks))
		if !strings.HasSuffix(chunk, suffix) {
			t.Errorf("chunk %d missing numbering %q: %q", i, suffix, chunk)
		}
		if len(chunk) > c.MaxSize {
			t.Errorf("chunk %d overflows with numbering: %d > %d", i, len(chunk), c.MaxSize)
		}
	}
}

func TestChunkTwoChunksNotNumbered(t *testing.T) {
	c := &Chunker{MaxSize: 100, MaxLines: 50}
	chunks := c.Chunk(strings.Repeat("a", 60) + "\n\n" + strings.Repeat("b", 60))
	for _, chunk := range chunks {
		if strings.Contains(chunk, "-# (") {
			t.Errorf("sub-3 chunk run should not be numbered: %q", chunk)
		}
	}
}

func TestChunkReopensFence(t *testing.T) {
	c := &Chunker{MaxSize: 120, MaxLines: 50}
	var code []string
	for i := 0; i < 12; i++ {
		code = append(code, fmt.Sprintf("line_%02d := compute(%d)", i, i))
	}
	text := "```go\n" + strings.Join(code, "\n") + "\n```"
	chunks := c.Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if fenceLines(chunk)%2 != 0 {
			t.Errorf("chunk %d has unbalanced fences:\n%s", i, chunk)
		}
	}
	// Continuation chunks reopen with the language tag.
	for _, chunk := range chunks[1:] {
		if !strings.HasPrefix(chunk, "```go") {
			t.Errorf("continuation should reopen ```go, got %q", chunk)
		}
	}
}

func TestChunkRespectsLineCap(t *testing.T) {
	c := &Chunker{MaxSize: 2000, MaxLines: 5}
	var lines []string
	for i := 0; i < 14; i++ {
		lines = append(lines, fmt.Sprintf("item %d", i))
	}
	chunks := c.Chunk(strings.Join(lines, "\n"))
	for i, chunk := range chunks {
		if n := strings.Count(chunk, "\n") + 1; n > c.MaxLines+1 {
			t.Errorf("chunk %d has %d lines, cap %d", i, n, c.MaxLines)
		}
	}
}

func fenceLines(chunk string) int {
	n := 0
	for _, line := range strings.Split(chunk, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			n++
		}
	}
	return n
}

// genFormattedBody mixes prose paragraphs and closed code blocks into bodies
// long enough to force splits.
func genFormattedBody() gopter.Gen {
	fragment := gen.OneConstOf(
		strings.Repeat("A sentence of ordinary prose that runs on for a while. ", 8),
		strings.Repeat("short. ", 3),
		"```go\n"+strings.Repeat("x := f(x)\n", 18)+"```",
		"```\n"+strings.Repeat("plain output line\n", 9)+"```",
		"- one\n- two\n- three",
		strings.Repeat("word ", 500),
	)
	return gen.SliceOf(fragment).Map(func(parts []string) string {
		return strings.Join(parts, "\n\n")
	})
}

func TestChunkProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)
	c := NewChunker()

	properties.Property("every chunk fits the platform limit", prop.ForAll(
		func(body string) bool {
			for _, chunk := range c.Chunk(body) {
				if len(chunk) > c.MaxSize {
					return false
				}
			}
			return true
		},
		genFormattedBody(),
	))

	properties.Property("no chunk leaves a fence unbalanced", prop.ForAll(
		func(body string) bool {
			for _, chunk := range c.Chunk(body) {
				if fenceLines(chunk)%2 != 0 {
					return false
				}
			}
			return true
		},
		genFormattedBody(),
	))

	properties.Property("chunks are never blank", prop.ForAll(
		func(body string) bool {
			for _, chunk := range c.Chunk(body) {
				if strings.TrimSpace(chunk) == "" {
					return false
				}
			}
			return true
		},
		genFormattedBody(),
	))

	properties.TestingRun(t)
}
