// Package pipeline turns raw agent output into chunked platform messages:
// sanitise, classify, format, chunk, render.
package pipeline

import (
	"strings"
	"time"

	"github.com/donnabot/donna/pkg/models"
)

// NoReplySentinel suppresses delivery when it is the entire response.
const NoReplySentinel = "NO_REPLY"

// OutcomeKind discriminates the Process result.
type OutcomeKind string

const (
	OutcomeDelivered  OutcomeKind = "delivered"
	OutcomeSuppressed OutcomeKind = "suppressed"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome is the terminal result of processing one response body. Exactly
// one of Messages, Reason, or FailKind/FailMessage is meaningful, selected
// by Kind.
type Outcome struct {
	Kind        OutcomeKind
	Messages    []models.OutboundMessage
	Reason      string
	FailKind    string
	FailMessage string
	Class       Class
}

// Delivered wraps messages ready for egress.
func Delivered(cls Class, messages []models.OutboundMessage) Outcome {
	return Outcome{Kind: OutcomeDelivered, Class: cls, Messages: messages}
}

// Suppressed records that nothing will be posted, and why.
func Suppressed(reason string) Outcome {
	return Outcome{Kind: OutcomeSuppressed, Reason: reason}
}

// Failed records a processing failure the dispatcher turns into a
// user-visible error message.
func Failed(kind, message string) Outcome {
	return Outcome{Kind: OutcomeFailed, FailKind: kind, FailMessage: message}
}

// Input is one response body to process. UserText is the originating user
// turn (code-display cues); Raw bypasses the sanitiser and wraps the body in
// a fence.
type Input struct {
	Body     string
	UserText string
	Raw      bool
}

// Pipeline is the fixed sanitise → classify → format → chunk → render
// sequence. The zero value is not usable; construct with New.
type Pipeline struct {
	chunker *Chunker
	now     func() time.Time
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithChunker overrides the default chunker.
func WithChunker(c *Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// WithNow overrides the clock for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline with platform defaults.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker: NewChunker(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full pipeline over one body.
func (p *Pipeline) Process(in Input) Outcome {
	if in.Raw {
		body := strings.TrimRight(in.Body, "\n")
		if strings.TrimSpace(body) == "" {
			return Suppressed("empty response")
		}
		fenced := "```\n" + body + "\n```"
		msgs := render(ClassCode, formatted{text: fenced}, p.chunker, p.now)
		return Delivered(ClassCode, msgs)
	}

	body := Sanitize(in.Body)
	if body == "" {
		return Suppressed("empty response")
	}
	if strings.TrimSpace(body) == NoReplySentinel {
		return Suppressed("no-reply sentinel")
	}

	cls := Classify(body)
	f := format(cls, body, in.UserText)
	msgs := render(cls, f, p.chunker, p.now)
	if len(msgs) == 0 {
		return Suppressed("empty after formatting")
	}
	return Delivered(cls, msgs)
}
