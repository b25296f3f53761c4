package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/donnabot/donna/pkg/models"
)

// table is a parsed markdown pipe table with its position in the source.
type table struct {
	headers []string
	rows    [][]string
	raw     string
	start   int
	end     int
}

var (
	tableRowRegex      = regexp.MustCompile(`^\s*\|(.+)\|\s*$`)
	tableSeparatorRegex = regexp.MustCompile(`^\s*\|[\s\-:|]+\|\s*$`)
)

// findTables locates all pipe tables in text.
func findTables(text string) []table {
	var tables []table
	lines := strings.Split(text, "\n")

	i := 0
	for i < len(lines) {
		if tableRowRegex.MatchString(lines[i]) {
			t, endLine := parseTableAt(lines, i)
			if t != nil {
				raw := strings.Join(lines[i:endLine], "\n")
				start := 0
				for j := 0; j < i; j++ {
					start += len(lines[j]) + 1
				}
				end := start + len(raw)
				if end > len(text) {
					end = len(text)
				}
				t.raw, t.start, t.end = raw, start, end
				tables = append(tables, *t)
				i = endLine
				continue
			}
		}
		i++
	}
	return tables
}

func parseTableAt(lines []string, idx int) (*table, int) {
	headers := parseCells(lines[idx])
	if len(headers) == 0 {
		return nil, idx
	}
	if idx+1 >= len(lines) || !tableSeparatorRegex.MatchString(lines[idx+1]) {
		return nil, idx
	}

	t := &table{headers: headers}
	end := idx + 2
	for end < len(lines) && tableRowRegex.MatchString(lines[end]) {
		cells := parseCells(lines[end])
		for len(cells) < len(headers) {
			cells = append(cells, "")
		}
		t.rows = append(t.rows, cells[:len(headers)])
		end++
	}
	if len(t.rows) == 0 {
		return nil, idx
	}
	return t, end
}

func parseCells(row string) []string {
	row = strings.TrimSpace(row)
	row = strings.TrimPrefix(row, "|")
	row = strings.TrimSuffix(row, "|")

	parts := strings.Split(row, "|")
	cells := make([]string, 0, len(parts))
	for _, part := range parts {
		cells = append(cells, strings.TrimSpace(part))
	}
	return cells
}

// proseFriendly reports whether the table's cells read as sentence fragments
// rather than terse values, making a prose rendering preferable.
func (t *table) proseFriendly() bool {
	if len(t.headers) > 3 {
		return false
	}
	total, n := 0, 0
	for _, row := range t.rows {
		for _, cell := range row[1:] {
			total += len(cell)
			n++
		}
	}
	return n > 0 && total/n > 24
}

// toEmbed renders the table as embed fields, one per row.
func (t *table) toEmbed() *models.Embed {
	embed := &models.Embed{}
	for _, row := range t.rows {
		name := row[0]
		if name == "" {
			name = "—"
		}
		var parts []string
		for i, cell := range row[1:] {
			header := ""
			if i+1 < len(t.headers) && t.headers[i+1] != "" {
				header = t.headers[i+1] + ": "
			}
			parts = append(parts, header+cell)
		}
		embed.Fields = append(embed.Fields, models.EmbedField{
			Name:  name,
			Value: strings.Join(parts, "\n"),
		})
	}
	embed.Clamp()
	return embed
}

// toMonospace renders the table as a fixed-width block.
func (t *table) toMonospace() string {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	var b strings.Builder
	b.WriteString("```text\n")
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i >= len(widths) {
				break
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len([]rune(cell))+2))
			}
		}
		b.WriteString("\n")
	}
	writeRow(t.headers)
	for i, w := range widths {
		b.WriteString(strings.Repeat("-", w))
		if i < len(widths)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")
	for _, row := range t.rows {
		writeRow(row)
	}
	b.WriteString("```")
	return b.String()
}

// toProse renders a 2-3 column table as sentence-per-row text.
func (t *table) toProse() string {
	var lines []string
	for _, row := range t.rows {
		rest := make([]string, 0, len(row)-1)
		for _, cell := range row[1:] {
			if cell != "" {
				rest = append(rest, cell)
			}
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s", row[0], strings.Join(rest, "; ")))
	}
	return strings.Join(lines, "\n")
}

// tableFromJSON builds a table from an array of flat JSON objects, with
// column order stabilised alphabetically.
func tableFromJSON(payload string) *table {
	var rows []map[string]any
	if err := json.Unmarshal([]byte(payload), &rows); err != nil || len(rows) == 0 {
		return nil
	}

	keySet := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			keySet[k] = true
		}
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	t := &table{headers: headers}
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i, k := range headers {
			if v, ok := row[k]; ok && v != nil {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		t.rows = append(t.rows, cells)
	}
	return t
}
