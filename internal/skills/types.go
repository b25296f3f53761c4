// Package skills loads SKILL.md documents, resolves conversational
// triggers, and runs registered data fetchers.
package skills

import (
	"context"
	"encoding/json"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	// FrontmatterDelimiter marks the beginning and end of YAML frontmatter.
	FrontmatterDelimiter = "---"
)

// Skill is one parsed SKILL.md document. The body is opaque instructions
// passed to the agent verbatim.
type Skill struct {
	Name           string   `yaml:"name"`
	Triggers       []string `yaml:"triggers"`
	Scheduled      bool     `yaml:"scheduled"`
	Conversational bool     `yaml:"conversational"`
	Channel        string   `yaml:"channel"`
	DataFetcher    string   `yaml:"data_fetcher"`

	// Instructions is the markdown body below the frontmatter.
	Instructions string `yaml:"-"`
	// Path is the skill's directory.
	Path string `yaml:"-"`
}

// Fetcher produces pre-fetched JSON for a skill run.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// FetchUnavailable is the placeholder a skill runs with when its fetcher
// fails or is missing.
var FetchUnavailable = json.RawMessage(`{"error":"data unavailable"}`)
