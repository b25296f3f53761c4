package pipeline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/donnabot/donna/pkg/models"
)

// formatted is the formatter output handed to the renderer: body text plus
// any embeds lifted out of it. Embeds are atomic with respect to chunking.
type formatted struct {
	text   string
	embeds []*models.Embed
}

// codeCueRegex matches user turns that ask to see code verbatim.
var codeCueRegex = regexp.MustCompile(`(?i)\b(show me|raw|paste|verbatim|full (code|output|block))\b`)

// maxShownCodeLines caps a code block the user asked to see.
const maxShownCodeLines = 30

// maxErrorDiagnostic caps the fenced diagnostic under an error summary.
const maxErrorDiagnostic = 800

// maxSearchItems caps items in a search-family embed.
const maxSearchItems = 10

// maxSnippetLen caps per-item snippets in a search-family embed.
const maxSnippetLen = 100

// format applies the class-specific transform. userText is the originating
// user turn, consulted for code-display cues.
func format(cls Class, body, userText string) formatted {
	switch cls {
	case ClassTable:
		return formatTables(body)
	case ClassCode:
		return formatted{text: formatCode(body, userText)}
	case ClassSearch, ClassNews, ClassImage, ClassLocal:
		return formatSearch(body)
	case ClassSchedule:
		return formatted{text: formatSchedule(body)}
	case ClassError:
		return formatted{text: formatError(body)}
	case ClassMixed:
		f := formatTables(body)
		f.text = formatCode(f.text, userText)
		return f
	case ClassConversational, ClassProactive:
		return formatted{text: formatConversational(body)}
	default:
		return formatted{text: body}
	}
}

// formatTables replaces every pipe table in body with its platform
// rendering. Tables are never passed through verbatim: small ones become
// embed fields, wide ones a fixed-width block, prose-friendly 2-3 column
// ones plain sentences.
func formatTables(body string) formatted {
	tables := findTables(body)
	if len(tables) == 0 {
		// Pure-JSON bodies classify as table when shaped like rows.
		if payload, ok := pureJSONBlock(body); ok {
			if t := tableFromJSON(payload); t != nil {
				return renderTable(t, "")
			}
		}
		return formatted{text: body}
	}

	var out formatted
	text := body
	// Replace back-to-front so earlier offsets stay valid.
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		r := renderTable(&t, "")
		replacement := r.text
		out.embeds = append(r.embeds, out.embeds...)
		text = text[:t.start] + replacement + text[t.end:]
	}
	out.text = strings.TrimSpace(text)
	return out
}

func renderTable(t *table, title string) formatted {
	switch {
	case len(t.headers) <= 3 && t.proseFriendly():
		return formatted{text: t.toProse()}
	case len(t.headers) <= 4 && len(t.rows) <= 6:
		embed := t.toEmbed()
		embed.Title = title
		return formatted{embeds: []*models.Embed{embed}}
	default:
		return formatted{text: t.toMonospace()}
	}
}

// formatCode suppresses fenced code unless the user asked for it. Shown
// blocks are capped at maxShownCodeLines with a truncation note.
func formatCode(body, userText string) string {
	spans := parseFenceSpans(body)
	if len(spans) == 0 {
		return body
	}
	show := codeCueRegex.MatchString(userText)

	var b strings.Builder
	pos := 0
	for _, s := range spans {
		end := s.end
		if end < 0 {
			end = len(body)
		}
		b.WriteString(body[pos:s.start])
		block := body[s.start:end]
		if show {
			b.WriteString(capCodeBlock(block))
		} else {
			b.WriteString(summariseCodeBlock(block, s.openLine))
		}
		pos = end
	}
	b.WriteString(body[pos:])
	return strings.TrimSpace(b.String())
}

func capCodeBlock(block string) string {
	lines := strings.Split(block, "\n")
	// Opening and closing fence lines do not count against the cap.
	if len(lines) <= maxShownCodeLines+2 {
		return block
	}
	fence := strings.TrimSpace(lines[0])[:3]
	kept := lines[:maxShownCodeLines+1]
	omitted := len(lines) - len(kept) - 1
	return strings.Join(kept, "\n") + "\n" + fence + fmt.Sprintf("\n*(%d more lines omitted)*", omitted)
}

func summariseCodeBlock(block, openLine string) string {
	lang := strings.TrimLeft(strings.TrimSpace(openLine), "`~")
	lines := strings.Count(block, "\n") - 1
	if lines < 1 {
		lines = 1
	}
	if lang == "" {
		lang = "code"
	}
	return fmt.Sprintf("*(%d lines of %s — say \"show me\" for the full block)*", lines, lang)
}

// searchItemRegex matches a markdown list item carrying a link.
var searchItemRegex = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)

// markdownLinkRegex matches [title](url).
var markdownLinkRegex = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)

// formatSearch collapses search-family output into one embed: a short lead,
// then up to maxSearchItems title/URL/snippet entries with duplicate
// hostnames dropped.
func formatSearch(body string) formatted {
	embed := &models.Embed{}
	seenHosts := map[string]bool{}
	var items []string

	var leadLines []string
	for _, line := range strings.Split(body, "\n") {
		if len(leadLines) >= 2 {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || searchItemRegex.MatchString(line) || urlRegex.MatchString(trimmed) {
			break
		}
		leadLines = append(leadLines, trimmed)
	}

	for _, m := range searchItemRegex.FindAllStringSubmatch(body, -1) {
		item := strings.TrimSpace(m[1])
		u := ""
		title := item
		if link := markdownLinkRegex.FindStringSubmatch(item); link != nil {
			title = link[1]
			u = link[2]
		} else if raw := urlRegex.FindString(item); raw != "" {
			u = raw
			title = strings.TrimSpace(strings.Replace(item, raw, "", 1))
			title = strings.Trim(title, " -–—:()")
		}
		if u == "" {
			continue
		}
		if host := hostname(u); host != "" {
			if seenHosts[host] {
				continue
			}
			seenHosts[host] = true
		}
		if title == "" {
			title = u
		}
		snippet := snippetAfter(body, item)
		entry := fmt.Sprintf("**[%s](%s)**", models.Truncate(title, 120), u)
		if snippet != "" {
			entry += "\n" + models.Truncate(snippet, maxSnippetLen)
		}
		items = append(items, entry)
		if len(items) >= maxSearchItems {
			break
		}
	}

	if len(items) == 0 {
		return formatted{text: body}
	}
	embed.Description = strings.Join(items, "\n\n")
	embed.Clamp()
	return formatted{text: strings.Join(leadLines, " "), embeds: []*models.Embed{embed}}
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// snippetAfter returns the first non-item line following the given list item,
// which search output conventionally uses as the result snippet.
func snippetAfter(body, item string) string {
	idx := strings.Index(body, item)
	if idx < 0 {
		return ""
	}
	rest := body[idx+len(item):]
	for _, line := range strings.Split(rest, "\n")[1:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			return ""
		}
		if searchItemRegex.MatchString(line) {
			return ""
		}
		return trimmed
	}
	return ""
}

// absoluteTimeRegex matches ISO-style datetimes the agent emits for calendar
// answers.
var absoluteTimeRegex = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2})(?::\d{2})?(Z|[+-]\d{2}:?\d{2})?\b`)

// formatSchedule rewrites absolute datetimes as Discord native timestamps so
// the client localises them.
func formatSchedule(body string) string {
	return absoluteTimeRegex.ReplaceAllStringFunc(body, func(match string) string {
		sub := absoluteTimeRegex.FindStringSubmatch(match)
		layout := "2006-01-02 15:04"
		value := sub[1] + " " + sub[2]
		loc := time.Local
		if sub[3] != "" {
			layout = "2006-01-02 15:04Z07:00"
			tz := sub[3]
			if len(tz) == 5 && tz != "Z" { // +0100 → +01:00
				tz = tz[:3] + ":" + tz[3:]
			}
			value += tz
		}
		t, err := time.ParseInLocation(layout, value, loc)
		if err != nil {
			return match
		}
		return fmt.Sprintf("<t:%d:f> (<t:%d:R>)", t.Unix(), t.Unix())
	})
}

// formatError reduces error-shaped output to a one-line summary plus a
// bounded fenced diagnostic.
func formatError(body string) string {
	summary := ""
	var diagnostic []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if summary == "" && trimmed != "" && errorTermRegex.MatchString(trimmed) {
			summary = trimmed
			continue
		}
		if trimmed != "" || len(diagnostic) > 0 {
			diagnostic = append(diagnostic, line)
		}
	}
	if summary == "" {
		summary = strings.SplitN(strings.TrimSpace(body), "\n", 2)[0]
		diagnostic = nil
	}

	out := summary
	detail := strings.TrimSpace(strings.Join(diagnostic, "\n"))
	detail = strings.Trim(detail, "`")
	if detail != "" {
		out += "\n```\n" + models.Truncate(detail, maxErrorDiagnostic) + "\n```"
	}
	return out
}

// headerRegex matches markdown headers at line start.
var headerRegex = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

// formatConversational strips residual markdown headers and replaces
// embedded pure-JSON fences with a short semantic summary. Inline code is
// left alone.
func formatConversational(body string) string {
	body = headerRegex.ReplaceAllString(body, "**$1**")

	spans := parseFenceSpans(body)
	if len(spans) == 0 {
		return strings.TrimSpace(body)
	}
	var b strings.Builder
	pos := 0
	for _, s := range spans {
		end := s.end
		if end < 0 {
			end = len(body)
		}
		block := body[s.start:end]
		if payload, ok := pureJSONBlock(block); ok {
			b.WriteString(body[pos:s.start])
			b.WriteString(summariseJSON(payload))
			pos = end
		}
	}
	b.WriteString(body[pos:])
	return strings.TrimSpace(b.String())
}

// summariseJSON describes a JSON payload in one line instead of showing it.
func summariseJSON(payload string) string {
	var asArray []map[string]any
	if err := json.Unmarshal([]byte(payload), &asArray); err == nil && len(asArray) > 0 {
		keys := map[string]bool{}
		for _, row := range asArray {
			for k := range row {
				keys[k] = true
			}
		}
		names := make([]string, 0, len(keys))
		for k := range keys {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) > 4 {
			names = names[:4]
		}
		return fmt.Sprintf("*(%d records: %s)*", len(asArray), strings.Join(names, ", "))
	}

	var asObject map[string]any
	if err := json.Unmarshal([]byte(payload), &asObject); err == nil {
		names := make([]string, 0, len(asObject))
		for k := range asObject {
			names = append(names, k)
		}
		sort.Strings(names)
		if len(names) > 4 {
			names = names[:4]
		}
		return fmt.Sprintf("*(structured data: %s)*", strings.Join(names, ", "))
	}
	return "*(structured data)*"
}
