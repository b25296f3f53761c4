package commands

import (
	"regexp"
	"strings"
)

// commandRe matches a slash command at the start of a message, with
// optional argument text after the name.
var commandRe = regexp.MustCompile(`^/([a-zA-Z][a-zA-Z0-9_-]*)(?:\s+(.*))?$`)

// rawSuffix marks a message whose agent output should bypass the
// sanitiser.
const rawSuffix = "--raw"

// Parse detects a slash command at the start of text. It returns nil for
// anything else; the name may be unregistered (skill shorthand like
// /morning-brief is resolved by the caller).
func Parse(text string) *Parsed {
	text = strings.TrimSpace(text)
	match := commandRe.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return &Parsed{
		Name: strings.ToLower(match[1]),
		Args: strings.TrimSpace(match[2]),
	}
}

// IsCommand reports whether text starts with a slash command.
func IsCommand(text string) bool {
	return Parse(text) != nil
}

// StripRawSuffix removes a trailing --raw marker from message text and
// reports whether it was present.
func StripRawSuffix(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasSuffix(trimmed, rawSuffix) {
		return text, false
	}
	stripped := strings.TrimSpace(strings.TrimSuffix(trimmed, rawSuffix))
	return stripped, true
}

// SplitArgs splits argument text into its first word and the rest, both
// trimmed. Used by commands with subcommands.
func SplitArgs(args string) (head, rest string) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", ""
	}
	parts := strings.SplitN(args, " ", 2)
	head = strings.ToLower(parts[0])
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return head, rest
}
