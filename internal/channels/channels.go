// Package channels defines the egress surface: platform adapters deliver
// rendered messages, and the dispatcher consumes platform-neutral inbound
// events.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/donnabot/donna/pkg/models"
)

// Inbound is one platform-neutral received message.
type Inbound struct {
	ChannelID  string
	UserID     string
	Username   string
	Text       string
	ReceivedAt time.Time
}

// Sender delivers one rendered message to a channel.
type Sender interface {
	Send(ctx context.Context, channelID string, msg models.OutboundMessage) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, channelID string, msg models.OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, channelID string, msg models.OutboundMessage) error {
	return f(ctx, channelID, msg)
}

// Typer is implemented by adapters that can show a typing indicator.
// Indicators are best-effort; implementations never fail the request over
// them.
type Typer interface {
	Typing(ctx context.Context, channelID string)
}

// Aliases maps friendly channel names (used in schedule documents and
// skills) to platform channel IDs.
type Aliases struct {
	byName map[string]string
}

// NewAliases builds the alias table. Lookup is case-insensitive.
func NewAliases(mapping map[string]string) *Aliases {
	byName := make(map[string]string, len(mapping))
	for name, id := range mapping {
		byName[strings.ToLower(strings.TrimSpace(name))] = id
	}
	return &Aliases{byName: byName}
}

// Resolve returns the channel ID for a name. Unknown names pass through
// unchanged so raw platform IDs keep working.
func (a *Aliases) Resolve(name string) string {
	if a == nil {
		return name
	}
	if id, ok := a.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return id
	}
	return name
}

// Known reports whether the name is a configured alias.
func (a *Aliases) Known(name string) bool {
	if a == nil {
		return false
	}
	_, ok := a.byName[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
