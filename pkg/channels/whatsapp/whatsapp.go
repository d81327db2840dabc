// Package whatsapp is the WhatsApp front channel, built on whatsmeow. Device
// state lives in its own SQLite file; first-time login goes through a QR
// handshake surfaced via the channel status.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for whatsmeow

	"shrimp/pkg/agent"
	"shrimp/pkg/channels"
	"shrimp/pkg/store"
)

// Config locates the whatsmeow session database.
type Config struct {
	SessionPath string `json:"sessionPath"`
}

// Channel receives WhatsApp messages, runs them through the engine under the
// conversation linked to the chat JID, and replies bubble by bubble.
type Channel struct {
	cfg    Config
	engine *agent.Engine
	store  store.Store
	model  string

	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	running   bool
	connected bool
	qrCode    string
	detail    string

	cancel context.CancelFunc
}

func New(cfg Config, engine *agent.Engine, st store.Store, defaultModel string) *Channel {
	return &Channel{cfg: cfg, engine: engine, store: st, model: defaultModel}
}

func (c *Channel) ID() string { return "whatsapp" }

// Start opens the session store, connects, and begins the QR handshake when
// the device is not yet paired.
func (c *Channel) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(c.cfg.SessionPath), 0o755); err != nil {
		return fmt.Errorf("whatsapp: create session dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", c.cfg.SessionPath), waLog.Noop)
	if err != nil {
		return fmt.Errorf("whatsapp: open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return fmt.Errorf("whatsapp: get device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Noop)
	client.AddEventHandler(c.handleEvent)

	runCtx, cancel := context.WithCancel(context.Background())

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(runCtx)
		if err != nil {
			cancel()
			_ = container.Close()
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			cancel()
			_ = container.Close()
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
		go func() {
			for {
				select {
				case <-runCtx.Done():
					return
				case evt, ok := <-qrChan:
					if !ok {
						return
					}
					switch evt.Event {
					case "code":
						c.mu.Lock()
						c.qrCode = evt.Code
						c.detail = "scan QR code to pair"
						c.mu.Unlock()
						slog.Info("whatsapp pairing code available", "code", evt.Code)
					case "success":
						c.mu.Lock()
						c.qrCode = ""
						c.detail = ""
						c.mu.Unlock()
					}
				}
			}
		}()
	} else {
		if err := client.Connect(); err != nil {
			cancel()
			_ = container.Close()
			return fmt.Errorf("whatsapp: connect: %w", err)
		}
	}

	c.mu.Lock()
	c.client = client
	c.container = container
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()
	return nil
}

func (c *Channel) Stop() error {
	c.mu.Lock()
	client, container, cancel := c.client, c.container, c.cancel
	c.client, c.container, c.cancel = nil, nil, nil
	c.running = false
	c.connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		client.Disconnect()
	}
	if container != nil {
		if err := container.Close(); err != nil {
			slog.Warn("whatsapp session store close failed", "error", err)
		}
	}
	return nil
}

func (c *Channel) Status() channels.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channels.Status{
		Channel:   "whatsapp",
		Running:   c.running,
		Connected: c.connected,
		QRCode:    c.qrCode,
		Detail:    c.detail,
	}
}

func (c *Channel) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()
		slog.Info("whatsapp connected")
	case *events.Disconnected:
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		slog.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		c.mu.Lock()
		c.connected = false
		c.detail = "logged out"
		c.mu.Unlock()
		slog.Warn("whatsapp logged out", "reason", v.Reason)
	case *events.Message:
		c.handleMessage(v)
	}
}

func (c *Channel) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.Chat.Server == "broadcast" {
		return
	}

	var text string
	switch {
	case evt.Message.Conversation != nil:
		text = evt.Message.GetConversation()
	case evt.Message.ExtendedTextMessage != nil:
		text = evt.Message.ExtendedTextMessage.GetText()
	}
	if text == "" {
		return
	}

	c.mu.Lock()
	client := c.client
	c.mu.Unlock()
	if client == nil {
		return
	}

	chatID := evt.Info.Chat.String()
	conv, err := c.store.GetOrCreateChannelConversation(context.Background(), "whatsapp", chatID, c.model)
	if err != nil {
		slog.Error("whatsapp conversation lookup failed", "chat", chatID, "error", err)
		return
	}

	result, err := c.engine.RunTurn(context.Background(), agent.TurnRequest{
		ConversationID: conv.ID,
		Message:        text,
	}, nil)
	if err != nil {
		slog.Error("whatsapp turn failed", "chat", chatID, "error", err)
		return
	}

	for _, bubble := range result.Bubbles {
		msg := &waE2E.Message{Conversation: proto.String(bubble)}
		if _, err := client.SendMessage(context.Background(), evt.Info.Chat, msg); err != nil {
			slog.Error("whatsapp send failed", "chat", chatID, "error", err)
			return
		}
	}
}
