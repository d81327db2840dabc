// Package web is the browser front channel: a websocket endpoint that
// accepts chat requests and streams the turn's events back as JSON frames.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"shrimp/pkg/agent"
	"shrimp/pkg/api"
	"shrimp/pkg/channels"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var upgrader = websocket.Upgrader{
	// The UI is served separately, so cross-origin upgrades are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config selects the websocket listen port.
type Config struct {
	Port int `json:"port"`
}

// incomingMessage is one chat request frame from the browser.
type incomingMessage struct {
	ConversationID   string `json:"conversationId"`
	Text             string `json:"text"`
	Model            string `json:"model"`
	ReplyToMessageID string `json:"replyToMessageId"`
}

// safeConn serializes writes; gorilla connections allow one writer at a time.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *safeConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

// Channel runs its own HTTP server exposing /ws. Each connection handles one
// turn at a time; events are forwarded as they are emitted.
type Channel struct {
	cfg    Config
	engine *agent.Engine

	mu      sync.Mutex
	server  *http.Server
	running bool
}

func New(cfg Config, engine *agent.Engine) *Channel {
	return &Channel{cfg: cfg, engine: engine}
}

func (c *Channel) ID() string { return "web" }

func (c *Channel) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.handleWebSocket)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.cfg.Port),
		Handler: mux,
	}

	c.mu.Lock()
	c.server = server
	c.running = true
	c.mu.Unlock()

	slog.Info("web channel listening", "port", c.cfg.Port)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("web channel server error", "error", err)
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
		}
	}()
	return nil
}

func (c *Channel) Stop() error {
	c.mu.Lock()
	server := c.server
	c.server = nil
	c.running = false
	c.mu.Unlock()
	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (c *Channel) Status() channels.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return channels.Status{
		Channel:   "web",
		Running:   c.running,
		Connected: c.running,
		Detail:    fmt.Sprintf("ws://localhost:%d/ws", c.cfg.Port),
	}
}

func (c *Channel) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	sc := &safeConn{Conn: conn}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket closed", "error", err)
			}
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = sc.writeJSON(api.ErrorEvent("invalid request frame"))
			continue
		}

		// Sequential per connection; the browser awaits assistant_done
		// before sending the next request.
		_, err = c.engine.RunTurn(r.Context(), agent.TurnRequest{
			ConversationID:   msg.ConversationID,
			Message:          msg.Text,
			Model:            msg.Model,
			ReplyToMessageID: msg.ReplyToMessageID,
		}, func(ev api.Event) {
			if writeErr := sc.writeJSON(ev); writeErr != nil {
				slog.Debug("websocket write failed", "error", writeErr)
			}
		})
		if err != nil {
			_ = sc.writeJSON(api.ErrorEvent(err.Error()))
		}
	}
}
