// Package discord is the Discord egress and ingress adapter.
package discord

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/donnabot/donna/internal/channels"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/pkg/models"
)

// session is the slice of discordgo.Session the adapter uses, split out so
// tests can fake it.
type session interface {
	Open() error
	Close() error
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// Config holds the Discord adapter settings.
type Config struct {
	// Token is the bot token (required).
	Token string
	// RateLimit is send operations per second; RateBurst the bucket size.
	RateLimit float64
	RateBurst int
	// BufferSize bounds the inbound message channel.
	BufferSize int
}

func (c *Config) validate() error {
	if c.Token == "" {
		return channels.ErrConfig("discord token is required", nil)
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	return nil
}

// Adapter connects to the Discord gateway, surfaces inbound messages, and
// implements channels.Sender for rendered output.
type Adapter struct {
	config  Config
	logger  *observability.Logger
	limiter *channels.RateLimiter

	mu        sync.RWMutex
	session   session
	connected bool
	botUserID string

	inbound chan channels.Inbound
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewAdapter creates a Discord adapter.
func NewAdapter(cfg Config, logger *observability.Logger) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:  cfg,
		logger:  logger.With("component", "discord"),
		limiter: channels.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		inbound: make(chan channels.Inbound, cfg.BufferSize),
	}, nil
}

// Start opens the gateway connection and begins delivering inbound
// messages.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return channels.ErrInternal("adapter already started", nil)
	}

	if a.session == nil {
		dg, err := discordgo.New("Bot " + a.config.Token)
		if err != nil {
			return channels.ErrAuthentication("create discord session", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
		a.session = dg
	}

	a.session.AddHandler(a.handleReady)
	a.session.AddHandler(a.handleMessageCreate)

	// The gateway can dispatch events as soon as Open returns, so the
	// handler context must exist first.
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.session.Open(); err != nil {
		a.cancel()
		a.ctx, a.cancel = nil, nil
		return channels.ErrConnection("open discord gateway", err)
	}

	a.connected = true
	a.logger.Info(ctx, "discord adapter started")
	return nil
}

// Stop closes the gateway connection.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.session.Close(); err != nil {
		return channels.ErrConnection("close discord session", err)
	}
	a.connected = false
	// inbound stays open: a late gateway dispatch may still reach the
	// handler, which drops messages once the context is cancelled.
	a.logger.Info(ctx, "discord adapter stopped")
	return nil
}

// Inbound returns the stream of received messages.
func (a *Adapter) Inbound() <-chan channels.Inbound {
	return a.inbound
}

// Send delivers one rendered message, rate limited.
func (a *Adapter) Send(ctx context.Context, channelID string, msg models.OutboundMessage) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}

	a.mu.RLock()
	connected := a.connected
	sess := a.session
	a.mu.RUnlock()
	if !connected || sess == nil {
		return channels.ErrUnavailable("adapter not connected", nil)
	}

	var err error
	switch {
	case msg.Embed != nil:
		msg.Embed.Clamp()
		send := &discordgo.MessageSend{
			Content: msg.Content,
			Embeds:  []*discordgo.MessageEmbed{convertEmbed(msg.Embed)},
		}
		_, err = sess.ChannelMessageSendComplex(channelID, send)
	case msg.Content != "":
		_, err = sess.ChannelMessageSend(channelID, msg.Content)
	default:
		return nil
	}

	if err != nil {
		a.logger.Error(ctx, "send failed", "channel", channelID, "error", err)
		if isRateLimitError(err) {
			return channels.ErrRateLimit("discord rate limited", err)
		}
		return channels.ErrInternal("send message", err)
	}
	return nil
}

// Typing shows a typing indicator, best-effort.
func (a *Adapter) Typing(ctx context.Context, channelID string) {
	a.mu.RLock()
	sess := a.session
	a.mu.RUnlock()
	if sess == nil {
		return
	}
	if err := sess.ChannelTyping(channelID); err != nil {
		a.logger.Debug(ctx, "typing indicator failed", "channel", channelID, "error", err)
	}
}

func (a *Adapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	a.botUserID = r.User.ID
	a.mu.Unlock()
	a.logger.Info(context.Background(), "discord gateway ready", "user", r.User.Username)
}

func (a *Adapter) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.RLock()
	self := a.botUserID
	ctx := a.ctx
	a.mu.RUnlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if m.Author.ID == self {
		return
	}

	in := channels.Inbound{
		ChannelID:  m.ChannelID,
		UserID:     m.Author.ID,
		Username:   m.Author.Username,
		Text:       m.Content,
		ReceivedAt: time.Now(),
	}
	if !m.Timestamp.IsZero() {
		in.ReceivedAt = m.Timestamp
	}

	select {
	case a.inbound <- in:
	case <-ctx.Done():
	default:
		a.logger.Warn(context.Background(), "inbound buffer full, dropping message", "channel", m.ChannelID)
	}
}

func convertEmbed(e *models.Embed) *discordgo.MessageEmbed {
	out := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		URL:         e.URL,
		Color:       e.Color,
	}
	if e.Footer != "" {
		out.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	return out
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "Too Many Requests")
}
