// Package envelope assembles the prompt envelope written to the agent's
// stdin. Build never fails: any optional source that errors or times out
// becomes an empty section plus a log entry.
package envelope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/donnabot/donna/internal/observability"
)

// Section markers, in envelope order. The exact bytes are part of the agent
// contract; the agent's instructions reference them by name.
const (
	SectionIdentity  = "## IDENTITY"
	SectionRecent    = "## RECENT"
	SectionMemory    = "## MEMORY"
	SectionKnowledge = "## KNOWLEDGE"
	SectionSkill     = "## SKILL"
	SectionRequest   = "## REQUEST"
)

// MemoryQuerier is the black-box memory service read side.
type MemoryQuerier interface {
	Query(ctx context.Context, text string, limit int) ([]string, error)
}

// Turn is one entry of the recent channel buffer.
type Turn struct {
	Author string
	Text   string
	At     time.Time
}

// SkillBlock carries a resolved skill's instructions and pre-fetched data.
type SkillBlock struct {
	Name         string
	Instructions string
	Data         json.RawMessage
}

// Input is everything request-specific the envelope needs.
type Input struct {
	// Recent is the channel buffer, oldest first.
	Recent []Turn
	// Skill is set when a skill resolved for this request.
	Skill *SkillBlock
	// Request is the user's (or job's) text.
	Request string
}

// Builder holds the per-process envelope sources.
type Builder struct {
	identityPath  string
	knowledgePath string
	memory        MemoryQuerier
	memoryTimeout time.Duration
	memoryLimit   int
	logger        *observability.Logger
}

// Option configures the builder.
type Option func(*Builder)

// WithIdentityFile points at the identity/tone document.
func WithIdentityFile(path string) Option {
	return func(b *Builder) { b.identityPath = path }
}

// WithKnowledgeFile points at the knowledge document.
func WithKnowledgeFile(path string) Option {
	return func(b *Builder) { b.knowledgePath = path }
}

// WithMemory wires the memory service read side.
func WithMemory(m MemoryQuerier, timeout time.Duration) Option {
	return func(b *Builder) {
		b.memory = m
		if timeout > 0 {
			b.memoryTimeout = timeout
		}
	}
}

// WithMemoryLimit bounds memory snippets per envelope.
func WithMemoryLimit(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.memoryLimit = n
		}
	}
}

// NewBuilder creates an envelope builder.
func NewBuilder(logger *observability.Logger, opts ...Option) *Builder {
	b := &Builder{
		memoryTimeout: 3 * time.Second,
		memoryLimit:   5,
		logger:        logger.With("component", "envelope"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the envelope bytes. All six sections are always present,
// in order, even when empty.
func (b *Builder) Build(ctx context.Context, in Input) []byte {
	var buf bytes.Buffer

	writeSection(&buf, SectionIdentity, b.readFile(ctx, b.identityPath, "identity"))
	writeSection(&buf, SectionRecent, formatTurns(in.Recent))
	writeSection(&buf, SectionMemory, b.queryMemory(ctx, in.Request))
	writeSection(&buf, SectionKnowledge, b.readFile(ctx, b.knowledgePath, "knowledge"))
	writeSection(&buf, SectionSkill, formatSkill(in.Skill))
	writeSection(&buf, SectionRequest, strings.TrimSpace(in.Request))

	return buf.Bytes()
}

func writeSection(buf *bytes.Buffer, marker, body string) {
	buf.WriteString(marker)
	buf.WriteString("\n")
	if body != "" {
		buf.WriteString(body)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}

func (b *Builder) readFile(ctx context.Context, path, name string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		b.logger.Warn(ctx, "envelope source unavailable", "source", name, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (b *Builder) queryMemory(ctx context.Context, request string) string {
	if b.memory == nil || strings.TrimSpace(request) == "" {
		return ""
	}
	queryCtx, cancel := context.WithTimeout(ctx, b.memoryTimeout)
	defer cancel()

	snippets, err := b.memory.Query(queryCtx, request, b.memoryLimit)
	if err != nil {
		b.logger.Warn(ctx, "envelope source unavailable", "source", "memory", "error", err)
		return ""
	}
	var lines []string
	for _, s := range snippets {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, "- "+s)
		}
	}
	return strings.Join(lines, "\n")
}

func formatTurns(turns []Turn) string {
	var lines []string
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		author := t.Author
		if author == "" {
			author = "user"
		}
		if t.At.IsZero() {
			lines = append(lines, fmt.Sprintf("%s: %s", author, text))
		} else {
			lines = append(lines, fmt.Sprintf("[%s] %s: %s", t.At.UTC().Format("15:04"), author, text))
		}
	}
	return strings.Join(lines, "\n")
}

func formatSkill(s *SkillBlock) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Skill: " + s.Name + "\n\n")
	b.WriteString(strings.TrimSpace(s.Instructions))
	if len(s.Data) > 0 {
		b.WriteString("\n\nData:\n```json\n")
		b.Write(bytes.TrimSpace(s.Data))
		b.WriteString("\n```")
	}
	return b.String()
}
