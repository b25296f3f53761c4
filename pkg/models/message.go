package models

import "time"

// Platform message limits (Discord).
const (
	MaxMessageLength      = 2000
	MaxEmbedDescription   = 4096
	MaxEmbedFields        = 25
	MaxEmbedsPerMessage   = 10
	MaxEmbedFieldNameLen  = 256
	MaxEmbedFieldValueLen = 1024
)

// OutboundMessage is one platform message emitted by the response pipeline.
// Content and Embed may both be set; Content alone is the common case.
type OutboundMessage struct {
	Content string `json:"content,omitempty"`
	Embed   *Embed `json:"embed,omitempty"`
}

// Embed is a platform-native structured attachment. Embeds are atomic with
// respect to chunking: they are never split across messages.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Footer      string       `json:"footer,omitempty"`
	Timestamp   time.Time    `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedField is one name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Clamp truncates the embed in place to the platform limits.
func (e *Embed) Clamp() {
	e.Description = Truncate(e.Description, MaxEmbedDescription)
	if len(e.Fields) > MaxEmbedFields {
		e.Fields = e.Fields[:MaxEmbedFields]
	}
	for i := range e.Fields {
		e.Fields[i].Name = Truncate(e.Fields[i].Name, MaxEmbedFieldNameLen)
		e.Fields[i].Value = Truncate(e.Fields[i].Value, MaxEmbedFieldValueLen)
	}
}

// Truncate shortens s to at most max characters, appending an ellipsis when
// anything was cut. Safe on multi-byte runes.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
