package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/donnabot/donna/pkg/models"
)

// Chunker splits formatted bodies into platform-sized messages. Break-point
// priority: paragraph break, line break, sentence break, whitespace, hard
// cut. Fenced code blocks are never left unbalanced: a split inside one
// closes the fence and reopens it, language tag included, in the next chunk.
type Chunker struct {
	// MaxSize is the per-message character budget.
	MaxSize int
	// MaxLines bounds visible lines per chunk.
	MaxLines int
}

// NewChunker returns a chunker with the platform defaults.
func NewChunker() *Chunker {
	return &Chunker{MaxSize: models.MaxMessageLength, MaxLines: 20}
}

// numberingReserve is headroom for the "\n-# (i/N)" subtext suffix.
const numberingReserve = 14

// Chunk splits text and, when three or more chunks result, numbers them with
// the platform subtext syntax.
func (c *Chunker) Chunk(text string) []string {
	chunks := c.split(text, c.MaxSize)
	if len(chunks) < 3 {
		return chunks
	}

	// Re-split with headroom so the numbering suffix cannot overflow a
	// message.
	chunks = c.split(text, c.MaxSize-numberingReserve)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("%s\n-# (%d/%d)", chunks[i], i+1, len(chunks))
	}
	return chunks
}

// split performs the fence-aware chunking at the given size budget.
func (c *Chunker) split(text string, maxSize int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if len(text) <= maxSize && c.countLines(text) <= c.MaxLines {
		return []string{text}
	}

	var chunks []string
	remaining := text

	for len(remaining) > 0 {
		if len(remaining) <= maxSize && c.countLines(remaining) <= c.MaxLines {
			if tail := strings.TrimSpace(remaining); tail != "" {
				chunks = append(chunks, tail)
			}
			break
		}

		spans := parseFenceSpans(remaining)
		breakIdx := c.findBreakPoint(remaining, maxSize, spans)
		if breakIdx <= 0 {
			breakIdx = maxSize
		}

		chunk := remaining[:breakIdx]

		// A cut inside a fence closes it here and reopens it, with the
		// original language line, at the head of the rest.
		var active *fenceSpan
		for i := range spans {
			if spans[i].start < breakIdx && (spans[i].end < 0 || spans[i].end >= breakIdx) {
				active = &spans[i]
				break
			}
		}

		if active != nil && (active.end < 0 || active.end >= breakIdx) {
			chunk = strings.TrimRightFunc(chunk, unicode.IsSpace)
			if !strings.HasSuffix(chunk, "\n") {
				chunk += "\n"
			}
			chunk += active.fence
			remaining = active.openLine + "\n" + strings.TrimLeftFunc(remaining[breakIdx:], unicode.IsSpace)
		} else {
			remaining = strings.TrimLeftFunc(remaining[breakIdx:], unicode.IsSpace)
		}

		if chunk = strings.TrimSpace(chunk); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}

// findBreakPoint picks the best cut position within the size and line
// budget.
func (c *Chunker) findBreakPoint(text string, maxSize int, spans []fenceSpan) int {
	limit := maxSize
	if limit > len(text) {
		limit = len(text)
	}

	// Shrink the window when it holds too many lines.
	if idx := c.lineCapIndex(text, limit); idx > 0 && idx < limit {
		limit = idx
	}

	// Inside a fence only line breaks are acceptable cuts, and the closing
	// fence appended at the cut must still fit the budget.
	var active *fenceSpan
	for i := range spans {
		if spans[i].start < limit && (spans[i].end < 0 || spans[i].end >= limit) {
			active = &spans[i]
			break
		}
	}
	if active != nil {
		if reserve := len(active.fence) + 1; limit > reserve {
			limit -= reserve
		}
		window := text[:limit]
		contentStart := active.start + len(active.openLine) + 1
		if contentStart < len(window) {
			if idx := strings.LastIndex(window[contentStart:], "\n"); idx > 0 {
				return contentStart + idx + 1
			}
		}
		return limit
	}

	window := text[:limit]

	// 1. Paragraph break.
	if idx := lastIndexOutsideFence(window, "\n\n", spans); idx > 0 {
		return idx + 1
	}
	// 2. Line break.
	if idx := lastIndexOutsideFence(window, "\n", spans); idx > 0 {
		return idx + 1
	}
	// 3. Sentence break.
	for _, ending := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ending); idx > 0 {
			return idx + 1
		}
	}
	// 4. Whitespace.
	if idx := strings.LastIndexFunc(window, unicode.IsSpace); idx > 0 {
		return idx
	}
	// 5. Hard cut.
	return limit
}

// lineCapIndex returns the byte index just after the MaxLines-th newline
// within text[:limit], or 0 when the window is within the line budget.
func (c *Chunker) lineCapIndex(text string, limit int) int {
	if c.MaxLines <= 0 {
		return 0
	}
	count := 0
	for i := 0; i < limit; i++ {
		if text[i] == '\n' {
			count++
			if count >= c.MaxLines {
				return i + 1
			}
		}
	}
	return 0
}

func (c *Chunker) countLines(text string) int {
	return strings.Count(text, "\n") + 1
}

func lastIndexOutsideFence(window, sep string, spans []fenceSpan) int {
	idx := strings.LastIndex(window, sep)
	for idx > 0 {
		inside := false
		for _, s := range spans {
			end := s.end
			if end < 0 {
				end = int(^uint(0) >> 1)
			}
			if idx >= s.start && idx < end {
				inside = true
				break
			}
		}
		if !inside {
			return idx
		}
		idx = strings.LastIndex(window[:idx], sep)
	}
	return idx
}

// fenceSpan is one ``` or ~~~ block with its location.
type fenceSpan struct {
	start    int
	end      int // -1 while unclosed
	fence    string
	openLine string
}

// parseFenceSpans finds all code fences in text.
func parseFenceSpans(text string) []fenceSpan {
	var spans []fenceSpan
	var current *fenceSpan

	pos := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if current == nil {
			if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
				current = &fenceSpan{
					start:    pos,
					end:      -1,
					fence:    trimmed[:3],
					openLine: line,
				}
			}
		} else if strings.HasPrefix(trimmed, current.fence) {
			current.end = pos + len(line)
			spans = append(spans, *current)
			current = nil
		}

		pos += len(line) + 1
	}

	if current != nil {
		spans = append(spans, *current)
	}
	return spans
}
