// Package whatsapp mirrors rendered output to WhatsApp recipients over
// whatsmeow.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // session store driver for whatsmeow

	"github.com/donnabot/donna/internal/channels"
	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/pkg/models"
)

// waClient is the slice of whatsmeow.Client the adapter uses, split out so
// tests can fake it.
type waClient interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
}

// Adapter implements channels.Sender for the +whatsapp mirror. The channel
// ID it receives is the Discord channel; the recipients table maps it to a
// WhatsApp JID.
type Adapter struct {
	cfg    config.WhatsAppConfig
	logger *observability.Logger

	mu        sync.RWMutex
	client    waClient
	container *sqlstore.Container
	loggedIn  bool
}

// NewAdapter prepares the adapter. Start pairs and connects.
func NewAdapter(cfg config.WhatsAppConfig, logger *observability.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger.With("component", "whatsapp")}
}

// Start opens the session store and connects. A fresh device writes a
// pairing QR code PNG to the configured path and logs where to find it.
func (a *Adapter) Start(ctx context.Context) error {
	if !a.cfg.Enabled {
		return channels.ErrConfig("whatsapp mirror disabled", nil)
	}

	storePath := a.cfg.StorePath
	if storePath == "" {
		storePath = "whatsapp.db"
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil && filepath.Dir(storePath) != "." {
		return channels.ErrConfig("create whatsapp store directory", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", storePath), waLog.Noop)
	if err != nil {
		return channels.ErrConfig("open whatsapp session store", err)
	}
	a.container = container

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return channels.ErrConfig("load whatsapp device", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return channels.ErrAuthentication("request pairing channel", err)
		}
		if err := client.Connect(); err != nil {
			return channels.ErrConnection("connect for pairing", err)
		}
		go a.handlePairing(ctx, qrChan)
	} else {
		if err := client.Connect(); err != nil {
			return channels.ErrConnection("connect whatsapp", err)
		}
		a.mu.Lock()
		a.loggedIn = true
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	a.logger.Info(ctx, "whatsapp adapter started", "store", storePath)
	return nil
}

func (a *Adapter) handlePairing(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}
			switch evt.Event {
			case "code":
				if err := a.writeQR(evt.Code); err != nil {
					a.logger.Warn(ctx, "pairing code not written", "error", err)
					continue
				}
				a.logger.Info(ctx, "scan pairing code to link whatsapp", "path", a.qrPath())
			case "success":
				a.mu.Lock()
				a.loggedIn = true
				a.mu.Unlock()
				a.logger.Info(ctx, "whatsapp paired")
				return
			}
		}
	}
}

func (a *Adapter) qrPath() string {
	if a.cfg.QRPath != "" {
		return a.cfg.QRPath
	}
	return "whatsapp-qr.png"
}

func (a *Adapter) writeQR(code string) error {
	return qrcode.WriteFile(code, qrcode.Medium, 256, a.qrPath())
}

// Stop disconnects and closes the session store.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		a.client.Disconnect()
		a.client = nil
	}
	if a.container != nil {
		if err := a.container.Close(); err != nil {
			a.logger.Warn(ctx, "session store close failed", "error", err)
		}
		a.container = nil
	}
	a.loggedIn = false
	return nil
}

// Send mirrors one rendered message. Embeds flatten to text since WhatsApp
// has no native equivalent.
func (a *Adapter) Send(ctx context.Context, channelID string, msg models.OutboundMessage) error {
	a.mu.RLock()
	client := a.client
	loggedIn := a.loggedIn
	a.mu.RUnlock()

	if client == nil || !loggedIn || !client.IsConnected() {
		return channels.ErrUnavailable("whatsapp not connected", nil)
	}

	jid, err := a.recipient(channelID)
	if err != nil {
		return err
	}

	text := flatten(msg)
	if text == "" {
		return nil
	}
	_, err = client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return channels.ErrConnection("send whatsapp message", err)
	}
	return nil
}

// recipient maps a source channel ID to the configured WhatsApp JID.
func (a *Adapter) recipient(channelID string) (types.JID, error) {
	raw, ok := a.cfg.Recipients[channelID]
	if !ok {
		return types.JID{}, channels.ErrInvalidInput(
			fmt.Sprintf("no whatsapp recipient for channel %s", channelID), nil)
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		// Bare phone numbers are accepted for convenience.
		jid = types.NewJID(raw, types.DefaultUserServer)
	}
	if jid.User == "" {
		return types.JID{}, channels.ErrInvalidInput(fmt.Sprintf("invalid recipient %q", raw), err)
	}
	return jid, nil
}

// flatten renders an outbound message as plain text.
func flatten(msg models.OutboundMessage) string {
	var parts []string
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	if e := msg.Embed; e != nil {
		if e.Title != "" {
			parts = append(parts, "*"+e.Title+"*")
		}
		if e.Description != "" {
			parts = append(parts, e.Description)
		}
		for _, f := range e.Fields {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Value))
		}
		if e.Footer != "" {
			parts = append(parts, "_"+e.Footer+"_")
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
