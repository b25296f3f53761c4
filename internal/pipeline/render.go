package pipeline

import (
	"time"

	"github.com/donnabot/donna/pkg/models"
)

// Embed colours per class (Discord palette ints).
var classColors = map[Class]int{
	ClassSearch:   0x5865F2,
	ClassNews:     0xE67E22,
	ClassImage:    0x9B59B6,
	ClassLocal:    0x2ECC71,
	ClassTable:    0x3498DB,
	ClassSchedule: 0xF1C40F,
	ClassError:    0xE74C3C,
	ClassMixed:    0x3498DB,
}

var classFooters = map[Class]string{
	ClassSearch: "web search",
	ClassNews:   "news",
	ClassImage:  "images",
	ClassLocal:  "nearby",
}

// render chunks the formatted text and styles its embeds, producing the
// ordered outbound messages. Embeds follow the text chunks and are never
// split.
func render(cls Class, f formatted, chunker *Chunker, now func() time.Time) []models.OutboundMessage {
	var out []models.OutboundMessage
	for _, chunk := range chunker.Chunk(f.text) {
		out = append(out, models.OutboundMessage{Content: chunk})
	}
	for _, embed := range f.embeds {
		if embed == nil {
			continue
		}
		if embed.Color == 0 {
			embed.Color = classColors[cls]
		}
		if embed.Footer == "" {
			embed.Footer = classFooters[cls]
		}
		if embed.Timestamp.IsZero() && now != nil {
			embed.Timestamp = now()
		}
		embed.Clamp()
		out = append(out, models.OutboundMessage{Embed: embed})
	}
	return out
}
