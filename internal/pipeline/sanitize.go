package pipeline

import (
	"regexp"
	"strings"
)

// ansiRegex matches CSI and OSC terminal escape sequences.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\a\x1b]*(?:\a|\x1b\\)`)

// toolMarkerGlyphs start agent tool-activity lines ("⏺ Bash(ls)" and the
// "⎿ result" continuations).
const toolMarkerGlyphs = "⏺⎿✳✻✽✢●◐◓◑◒"

// boxDrawingGlyphs open the agent's session header/footer banner lines.
const boxDrawingGlyphs = "─│╭╮╰╯┌┐└┘├┤┬┴┼═║╔╗╚╝▔▁"

// bulletGlyphs are agent list markers normalised to markdown dashes.
var bulletGlyphs = []string{"• ", "◦ ", "▪ ", "‣ "}

// accountingRegexes match token/cost summary lines the agent prints at the
// end of a run.
var accountingRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*[✻✽*·]?\s*[\d.,]+k?\s*tokens\b.*$`),
	regexp.MustCompile(`(?i)^.*\b(total cost|cost:)\s*\$[\d.,]+.*$`),
	regexp.MustCompile(`(?i)^\s*(input|output)\s+tokens?:\s*[\d.,]+k?\s*$`),
	regexp.MustCompile(`(?i)^\s*[\d.,]+k?\s*tokens?\s*(·|\|)\s*\$[\d.,]+\s*$`),
}

// permissionRegexes match interactive permission prompts that leak into
// print-mode output.
var permissionRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*do you want to .*\?\s*$`),
	regexp.MustCompile(`(?i)^\s*\d+\.\s*(yes|no)\b.*$`),
	regexp.MustCompile(`(?i)^\s*❯?\s*(yes|no), and .*$`),
	regexp.MustCompile(`(?i)^\s*\(?(y/n|\[y/n\])\)?\s*$`),
	regexp.MustCompile(`(?i)^\s*(press enter to continue|esc to interrupt)\.?\s*$`),
}

// blankRunRegex matches three or more consecutive blank lines.
var blankRunRegex = regexp.MustCompile(`\n{4,}`)

// Sanitize strips terminal and agent artifacts from raw output. It is
// idempotent: applying it twice yields the same result as once.
func Sanitize(text string) string {
	text = ansiRegex.ReplaceAllString(text, "")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

lineLoop:
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if trimmed != "" {
			first, _ := firstRune(trimmed)
			if strings.ContainsRune(boxDrawingGlyphs, first) {
				continue
			}
			if strings.ContainsRune(toolMarkerGlyphs, first) {
				continue
			}
		}

		for _, re := range accountingRegexes {
			if re.MatchString(line) {
				continue lineLoop
			}
		}
		for _, re := range permissionRegexes {
			if re.MatchString(line) {
				continue lineLoop
			}
		}

		for _, glyph := range bulletGlyphs {
			if strings.HasPrefix(trimmed, glyph) {
				indent := line[:strings.Index(line, glyph)]
				line = indent + "- " + strings.TrimPrefix(trimmed, glyph)
				break
			}
		}

		// Whitespace-only lines become truly blank so run collapsing sees
		// them.
		if trimmed == "" {
			line = ""
		}

		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	out = blankRunRegex.ReplaceAllString(out, "\n\n\n")
	return strings.TrimSpace(out)
}

func firstRune(s string) (rune, int) {
	for _, r := range s {
		return r, len(string(r))
	}
	return 0, 0
}
