package agent

import "fmt"

// ErrorCode classifies invocation failures.
type ErrorCode string

const (
	// ErrTimeout means the deadline expired before a result event arrived.
	ErrTimeout ErrorCode = "timeout"
	// ErrNonzeroExit means the subprocess exited non-zero without a result.
	ErrNonzeroExit ErrorCode = "nonzero_exit"
	// ErrParseError means the stream ended with nothing parseable and no
	// result.
	ErrParseError ErrorCode = "parse_error"
	// ErrOversize means cumulative stdout exceeded the output cap.
	ErrOversize ErrorCode = "oversize"
)

// Error is an invocation failure with a stable code for the dispatcher's
// user-facing messaging.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("agent %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an agent error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause attaches the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// WithContext attaches a diagnostic key/value pair.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the agent error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	if agentErr, ok := err.(*Error); ok {
		return agentErr.Code
	}
	return ""
}
