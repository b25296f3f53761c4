// Package commands provides slash command detection and routing for the
// in-chat control surface.
package commands

import "context"

// Command is a registered slash command.
type Command struct {
	// Name is the command name without the leading slash.
	Name string

	// Aliases are alternative names for the command.
	Aliases []string

	// Description is a short line for help output.
	Description string

	// Usage shows how to invoke the command.
	Usage string

	// AcceptsArgs indicates the command takes argument text.
	AcceptsArgs bool

	// Hidden keeps the command out of help listings.
	Hidden bool

	// Handler executes the command.
	Handler Handler
}

// Handler processes a command invocation.
type Handler func(ctx context.Context, inv *Invocation) (*Result, error)

// Invocation is a parsed command invocation.
type Invocation struct {
	// Command is the matched definition, set by Execute.
	Command *Command

	// Name is the name or alias actually used.
	Name string

	// Args is the text after the command name.
	Args string

	// ChannelID and UserID identify where the command came from.
	ChannelID string
	UserID    string
}

// Result is the outcome of a command execution.
type Result struct {
	// Text is the response to post back, if any.
	Text string

	// Suppress means no response should be sent.
	Suppress bool

	// RunSkill, when set, tells the dispatcher to run the named skill
	// through the normal request path instead of replying directly.
	RunSkill string

	// Error is a user-visible failure message.
	Error string
}

// Parsed is a detected command at the start of a message.
type Parsed struct {
	// Name is the command name, lowercased, without the slash.
	Name string

	// Args is the trimmed text after the name.
	Args string
}
