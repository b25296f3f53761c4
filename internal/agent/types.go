package agent

import (
	"encoding/json"
	"time"
)

// Status is the terminal state of one invocation.
type Status string

const (
	StatusOK          Status = "ok"
	StatusTimeout     Status = "timeout"
	StatusKilled      Status = "killed"
	StatusParseError  Status = "parse_error"
	StatusNonzeroExit Status = "nonzero_exit"
)

// NoticeFunc receives interim tool-use notices ("searching the web …").
type NoticeFunc func(tool string)

// Job is one agent invocation request.
type Job struct {
	RequestID string
	// Envelope is written to the subprocess stdin, which then closes.
	Envelope []byte
	// Model overrides the configured model when set.
	Model string
	// WorkDir overrides the configured working directory when set.
	WorkDir string
	// Timeout shortens the configured deadline; it can never extend past
	// the configured cap.
	Timeout time.Duration
	// Notice, when set, receives interim tool-use notices.
	Notice NoticeFunc
}

// Invocation is the per-run record handed back with the result.
type Invocation struct {
	RequestID      string
	StartedAt      time.Time
	Duration       time.Duration
	PID            int
	InputBytes     int
	StreamedEvents int
	ResultText     string
	FinalStatus    Status
	InterimNotices int
	StderrExcerpt  string
}

// streamEvent is one parsed NDJSON line from the agent CLI's
// stream-json output.
type streamEvent struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Result  string          `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// contentBlock mirrors the CLI's message content blocks.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// parsedMessage is the message field of an assistant event.
type parsedMessage struct {
	Content []contentBlock `json:"content"`
}
