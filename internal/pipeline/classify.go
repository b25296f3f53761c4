package pipeline

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Class is the response category that picks the formatter.
type Class string

const (
	ClassConversational Class = "conversational"
	ClassTable          Class = "table"
	ClassCode           Class = "code"
	ClassSearch         Class = "search"
	ClassNews           Class = "news"
	ClassImage          Class = "image"
	ClassLocal          Class = "local"
	ClassList           Class = "list"
	ClassSchedule       Class = "schedule"
	ClassError          Class = "error"
	ClassMixed          Class = "mixed"
	ClassAck            Class = "ack"
	ClassProactive      Class = "proactive"
)

var (
	urlRegex      = regexp.MustCompile(`https?://[^\s)>\]]+`)
	newsTermRegex = regexp.MustCompile(`(?i)\b(headline|article|breaking|published|reports?|news)\b`)
	imageURLRegex = regexp.MustCompile(`(?i)https?://\S+\.(png|jpe?g|gif|webp)(\?\S*)?`)
	localRegex    = regexp.MustCompile(`(?i)(★|⭐|\brating\b|\breviews?\b|\bopen (now|until)\b|\bmiles? away\b|\bmins? walk\b)`)

	scheduleTermRegex = regexp.MustCompile(`(?i)\b(calendar|meeting|appointment|scheduled?|agenda|reminder)\b`)
	clockRegex        = regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(am|pm|AM|PM)?\b`)

	errorTermRegex = regexp.MustCompile(`(?i)\b(error|failed|failure|exception|traceback|panic:|fatal|unable to|couldn't)\b`)

	listItemRegex = regexp.MustCompile(`(?m)^\s*([-*+]|\d+[.)])\s+\S`)

	ackRegex = regexp.MustCompile(`(?i)^(on it|working on it|looking into|give me a (moment|minute|sec))`)
)

// Classify assigns the response class for a sanitised body. Priority:
// search patterns, JSON-dominant, table, code-dominant, schedule terms,
// error patterns, list, mixed, conversational.
func Classify(body string) Class {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return ClassConversational
	}

	if ackRegex.MatchString(trimmed) && len(trimmed) < 80 {
		return ClassAck
	}

	if cls, ok := classifySearch(trimmed); ok {
		return cls
	}

	// A body that is nothing but JSON is structured data, never
	// conversational: arrays of flat objects render as tables, anything
	// else as code.
	if payload, ok := pureJSONBlock(trimmed); ok {
		if isTabularJSON(payload) {
			return ClassTable
		}
		return ClassCode
	}

	hasTable := len(findTables(trimmed)) > 0
	codeDom := codeDominant(trimmed)
	listItems := len(listItemRegex.FindAllString(trimmed, -1))

	structures := 0
	for _, present := range []bool{hasTable, codeDom, listItems >= 4} {
		if present {
			structures++
		}
	}
	if structures >= 2 {
		return ClassMixed
	}

	if hasTable {
		return ClassTable
	}
	if codeDom {
		return ClassCode
	}
	if scheduleTermRegex.MatchString(trimmed) && len(clockRegex.FindAllString(trimmed, -1)) >= 1 {
		return ClassSchedule
	}
	if errorDominant(trimmed) {
		return ClassError
	}
	if listItems >= 4 {
		return ClassList
	}

	return ClassConversational
}

// classifySearch detects search-result shaped output and its subtype.
func classifySearch(body string) (Class, bool) {
	urls := urlRegex.FindAllString(body, -1)
	if len(urls) < 2 {
		return "", false
	}
	// Result lists pair URLs with item lines; a lone paragraph quoting two
	// links is not a result set.
	if len(listItemRegex.FindAllString(body, -1)) < 2 && strings.Count(body, "\n") < 2 {
		return "", false
	}

	imageHits := 0
	for _, u := range urls {
		if imageURLRegex.MatchString(u) {
			imageHits++
		}
	}
	if imageHits*2 >= len(urls) {
		return ClassImage, true
	}
	if localRegex.MatchString(body) {
		return ClassLocal, true
	}
	if newsTermRegex.MatchString(body) {
		return ClassNews, true
	}
	return ClassSearch, true
}

// isTabularJSON reports whether payload is a non-empty array of flat
// objects, the shape the table formatter can lay out as rows.
func isTabularJSON(payload string) bool {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(payload), &rows); err != nil || len(rows) == 0 {
		return false
	}
	for _, row := range rows {
		for _, v := range row {
			switch v.(type) {
			case map[string]any, []any:
				return false
			}
		}
	}
	return true
}

// pureJSONBlock extracts the JSON payload when the body is nothing but one
// JSON value (optionally inside a ```json fence).
func pureJSONBlock(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)

	if strings.HasPrefix(trimmed, "```") {
		inner := trimmed
		if idx := strings.Index(inner, "\n"); idx >= 0 {
			lang := strings.TrimPrefix(strings.TrimSpace(inner[:idx]), "```")
			if lang != "" && !strings.EqualFold(lang, "json") {
				return "", false
			}
			inner = inner[idx+1:]
		}
		inner = strings.TrimSuffix(strings.TrimSpace(inner), "```")
		trimmed = strings.TrimSpace(inner)
	}

	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	if !json.Valid([]byte(trimmed)) {
		return "", false
	}
	return trimmed, true
}

// codeDominant reports whether fenced code makes up the bulk of the body.
func codeDominant(body string) bool {
	spans := parseFenceSpans(body)
	if len(spans) == 0 {
		return false
	}
	covered := 0
	for _, s := range spans {
		end := s.end
		if end < 0 {
			end = len(body)
		}
		covered += end - s.start
	}
	return covered*2 >= len(body)
}

// errorDominant requires error terms near the start so that a long answer
// merely mentioning an error is not reclassified.
func errorDominant(body string) bool {
	head := body
	if len(head) > 400 {
		head = head[:400]
	}
	return errorTermRegex.MatchString(head)
}
