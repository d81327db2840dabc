// Package telegram is the Telegram front channel. Inbound messages are
// long-polled from the Bot API, routed through the turn engine, and the
// assistant's bubbles go back as individual replies.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shrimp/pkg/agent"
	"shrimp/pkg/channels"
	"shrimp/pkg/store"
)

const (
	// Telegram rejects messages over 4096 characters; long bubbles are
	// split into chunks of this size.
	messageLimit = 4000
	pollTimeout  = 60
	errorBackoff = 3 * time.Second
)

// Config carries the Bot API credentials.
type Config struct {
	Token string `json:"token"`
}

// Channel long-polls the Bot API and feeds each text message into the engine
// under the conversation linked to its chat id.
type Channel struct {
	cfg    Config
	engine *agent.Engine
	store  store.Store
	model  string

	mu        sync.Mutex
	bot       *tgbotapi.BotAPI
	connected bool
	detail    string

	stopCtx    context.Context
	stopCancel context.CancelFunc
}

func New(cfg Config, engine *agent.Engine, st store.Store, defaultModel string) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		cfg:        cfg,
		engine:     engine,
		store:      st,
		model:      defaultModel,
		stopCtx:    ctx,
		stopCancel: cancel,
	}
}

func (c *Channel) ID() string { return "telegram" }

// Start authorizes the bot and launches the update loop. The bot's HTTP
// client is tied to stopCtx so an in-flight long poll is aborted on Stop.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Token == "" {
		return fmt.Errorf("telegram: TELEGRAM_BOT_TOKEN is not set")
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: func(dialCtx context.Context, network, addr string) (net.Conn, error) {
				merged, cancel := context.WithCancel(dialCtx)
				go func() {
					select {
					case <-c.stopCtx.Done():
						cancel()
					case <-merged.Done():
					}
				}()
				return dialer.DialContext(merged, network, addr)
			},
			ForceAttemptHTTP2: true,
			IdleConnTimeout:   90 * time.Second,
		},
	}

	bot, err := tgbotapi.NewBotAPIWithClient(c.cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("telegram: authorize failed: %w", err)
	}

	c.mu.Lock()
	c.bot = bot
	c.connected = true
	c.detail = "@" + bot.Self.UserName
	c.mu.Unlock()

	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	go c.pollUpdates(bot)
	return nil
}

func (c *Channel) Stop() error {
	c.stopCancel()
	c.mu.Lock()
	c.bot = nil
	c.connected = false
	c.detail = ""
	c.mu.Unlock()
	return nil
}

func (c *Channel) Status() channels.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channels.Status{
		Channel:   "telegram",
		Running:   c.bot != nil,
		Connected: c.connected,
		Detail:    c.detail,
	}
}

// pollUpdates drives GetUpdates manually so the offset stays under our
// control and the loop can exit on stopCtx.
func (c *Channel) pollUpdates(bot *tgbotapi.BotAPI) {
	offset := 0
	for {
		select {
		case <-c.stopCtx.Done():
			return
		default:
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = pollTimeout

		updates, err := bot.GetUpdates(req)
		if err != nil {
			select {
			case <-c.stopCtx.Done():
				return
			default:
			}
			slog.Debug("telegram poll failed", "error", err)
			time.Sleep(errorBackoff)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			if update.Message == nil {
				continue
			}
			c.handleMessage(bot, update.Message)
		}
	}
}

func (c *Channel) handleMessage(bot *tgbotapi.BotAPI, msg *tgbotapi.Message) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	conv, err := c.store.GetOrCreateChannelConversation(c.stopCtx, "telegram", chatID, c.model)
	if err != nil {
		slog.Error("telegram conversation lookup failed", "chat", chatID, "error", err)
		return
	}

	result, err := c.engine.RunTurn(c.stopCtx, agent.TurnRequest{
		ConversationID: conv.ID,
		Message:        text,
	}, nil)
	if err != nil {
		slog.Error("telegram turn failed", "chat", chatID, "error", err)
		c.sendText(bot, msg.Chat.ID, "Something went wrong handling that message.")
		return
	}

	for _, bubble := range result.Bubbles {
		c.sendText(bot, msg.Chat.ID, bubble)
	}
}

// sendText sends one bubble, chunking when it exceeds the platform limit.
func (c *Channel) sendText(bot *tgbotapi.BotAPI, chatID int64, text string) {
	runes := []rune(text)
	for start := 0; start < len(runes); start += messageLimit {
		end := start + messageLimit
		if end > len(runes) {
			end = len(runes)
		}
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, string(runes[start:end]))); err != nil {
			slog.Error("telegram send failed", "chat", chatID, "error", err)
			return
		}
	}
}
