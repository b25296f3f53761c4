package schedule

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Binding is one enabled row of the schedule document: a skill bound to a
// schedule expression and a delivery channel.
type Binding struct {
	Job     string
	Skill   string
	Spec    *Spec
	Channel string

	// IgnoreQuiet lets the row fire inside the quiet window (!quiet flag).
	IgnoreQuiet bool
	// Mirror also sends the output over the secondary transport
	// (+whatsapp flag).
	Mirror bool
	// QueueOne queues exactly one firing behind an in-flight run instead
	// of dropping it.
	QueueOne bool
	Enabled  bool

	// Hash identifies the row content; reloads preserve run state for
	// unchanged rows.
	Hash string
}

// BindingError is a rejected schedule row. Other rows still load.
type BindingError struct {
	Line int
	Row  string
	Err  error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("schedule row at line %d: %v", e.Line, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

// ParseDocument parses the markdown schedule table. Rows are
// | Job | Skill | Schedule | Channel | Enabled |. Bad rows are returned as
// BindingErrors without failing the document; exact duplicate bindings are
// collapsed with a warning.
func ParseDocument(data []byte, defaultLoc *time.Location) ([]Binding, []string, []*BindingError) {
	var (
		bindings []Binding
		warnings []string
		errs     []*BindingError
		seen     = make(map[string]bool)
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			continue
		}
		cells := splitRow(line)
		if isHeaderRow(cells) || isSeparatorRow(cells) {
			continue
		}

		binding, err := parseRow(cells, defaultLoc)
		if err != nil {
			errs = append(errs, &BindingError{Line: lineNo, Row: line, Err: err})
			continue
		}

		key := binding.Skill + "|" + binding.Spec.Raw + "|" + binding.Channel
		if seen[key] {
			warnings = append(warnings, fmt.Sprintf("line %d: duplicate binding for skill %q ignored", lineNo, binding.Skill))
			continue
		}
		seen[key] = true
		bindings = append(bindings, binding)
	}

	return bindings, warnings, errs
}

func parseRow(cells []string, defaultLoc *time.Location) (Binding, error) {
	if len(cells) != 5 {
		return Binding{}, fmt.Errorf("want 5 columns (job, skill, schedule, channel, enabled), got %d", len(cells))
	}

	job, skill := cells[0], cells[1]
	if job == "" {
		return Binding{}, fmt.Errorf("job name is required")
	}
	if skill == "" {
		return Binding{}, fmt.Errorf("skill name is required")
	}

	spec, err := ParseSpec(cells[2], defaultLoc)
	if err != nil {
		return Binding{}, err
	}

	channel, ignoreQuiet, mirror, err := parseChannel(cells[3])
	if err != nil {
		return Binding{}, err
	}

	enabled, queueOne, err := parseEnabled(cells[4])
	if err != nil {
		return Binding{}, err
	}

	return Binding{
		Job:         job,
		Skill:       skill,
		Spec:        spec,
		Channel:     channel,
		IgnoreQuiet: ignoreQuiet,
		Mirror:      mirror,
		QueueOne:    queueOne,
		Enabled:     enabled,
		Hash:        rowHash(cells),
	}, nil
}

// parseChannel splits "name [!quiet] [+whatsapp]" into the channel name and
// its flags.
func parseChannel(cell string) (channel string, ignoreQuiet, mirror bool, err error) {
	tokens := strings.Fields(cell)
	if len(tokens) == 0 {
		return "", false, false, fmt.Errorf("channel is required")
	}
	channel = tokens[0]
	if strings.HasPrefix(channel, "!") || strings.HasPrefix(channel, "+") {
		return "", false, false, fmt.Errorf("channel name %q starts with a flag marker", channel)
	}
	for _, tok := range tokens[1:] {
		switch tok {
		case "!quiet":
			ignoreQuiet = true
		case "+whatsapp":
			mirror = true
		default:
			return "", false, false, fmt.Errorf("unknown channel flag %q", tok)
		}
	}
	return channel, ignoreQuiet, mirror, nil
}

func parseEnabled(cell string) (enabled, queueOne bool, err error) {
	switch strings.ToLower(cell) {
	case "yes", "true", "on":
		return true, false, nil
	case "no", "false", "off":
		return false, false, nil
	case "queue_one":
		return true, true, nil
	default:
		return false, false, fmt.Errorf("enabled column %q: want yes, no, or queue_one", cell)
	}
}

func splitRow(line string) []string {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

func isHeaderRow(cells []string) bool {
	return len(cells) > 0 && strings.EqualFold(cells[0], "job")
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}

func rowHash(cells []string) string {
	sum := sha256.Sum256([]byte(strings.Join(cells, "|")))
	return hex.EncodeToString(sum[:8])
}
