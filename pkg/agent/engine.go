// Package agent drives the bounded LLM tool-calling loop: it persists the
// transcript, dispatches tool calls, splits the final text into bubbles and
// streams events to the caller's sink.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"shrimp/pkg/api"
	"shrimp/pkg/config"
	"shrimp/pkg/llm"
	"shrimp/pkg/monitor"
	"shrimp/pkg/prompt"
	"shrimp/pkg/store"
	"shrimp/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// maxIterations bounds the LLM↔tools loop within one turn.
	maxIterations = 8

	// fallbackBubble is emitted when the loop produced no text at all.
	fallbackBubble = "Done."

	titleMaxChars       = 60
	replyPreviewChars   = 180
	excerptMaxChars     = 5000
	toolOutputPreview   = 800
	defaultTokenChunk   = 20
	defaultTokenDelay   = 14 * time.Millisecond
	defaultBubbleDelay  = 120 * time.Millisecond
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
var thinkTag = regexp.MustCompile(`</?think>`)

// ErrBadRequest marks input validation failures the transport surfaces as
// HTTP 400.
var ErrBadRequest = errors.New("bad request")

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	ConversationID   string             `json:"conversationId,omitempty"`
	Message          string             `json:"message"`
	Model            string             `json:"model,omitempty"`
	ReplyToMessageID string             `json:"replyToMessageId,omitempty"`
	Attachments      []store.Attachment `json:"attachments,omitempty"`
}

// TurnResult is the summary returned after the turn's events have been
// emitted.
type TurnResult struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	Bubbles        []string `json:"bubbles"`
}

// Engine orchestrates turns. It is safe for concurrent use; each RunTurn is
// an independent sequential execution.
type Engine struct {
	store   store.Store
	client  llm.ChatClient
	tools   api.ToolRegistry
	prompt  *prompt.Builder
	cfg     *config.Config
	monitor monitor.Monitor

	// Streaming pace. Tests set these to zero.
	tokenChunk  int
	tokenDelay  time.Duration
	bubbleDelay time.Duration
}

// NewEngine wires the engine's capabilities. monitor may be nil.
func NewEngine(st store.Store, client llm.ChatClient, tools api.ToolRegistry, pb *prompt.Builder, cfg *config.Config, mon monitor.Monitor) *Engine {
	return &Engine{
		store:       st,
		client:      client,
		tools:       tools,
		prompt:      pb,
		cfg:         cfg,
		monitor:     mon,
		tokenChunk:  defaultTokenChunk,
		tokenDelay:  defaultTokenDelay,
		bubbleDelay: defaultBubbleDelay,
	}
}

// SetPacing overrides the bubble streaming delays.
func (e *Engine) SetPacing(chunk int, tokenDelay, bubbleDelay time.Duration) {
	if chunk > 0 {
		e.tokenChunk = chunk
	}
	e.tokenDelay = tokenDelay
	e.bubbleDelay = bubbleDelay
}

// RunTurn executes one full turn and emits its event sequence to sink (which
// may be nil for non-streaming callers).
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest, sink api.EventSink) (*TurnResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrBadRequest)
	}

	model := e.cfg.ResolveModel(req.Model)

	conv, err := e.store.UpsertConversation(ctx, req.ConversationID, model)
	if err != nil {
		return nil, err
	}
	sink.Emit(api.ConversationEvent(conv.ID))
	e.observe("USER", conv.ID, message)

	if _, err := e.store.AddMessage(ctx, conv.ID, store.RoleUser, message, store.MessageOptions{
		ReplyToID:   req.ReplyToMessageID,
		Attachments: req.Attachments,
	}); err != nil {
		return nil, err
	}

	if conv.Title == store.DefaultTitle {
		if err := e.store.SetConversationTitleIfDefault(ctx, conv.ID, compactPreview(message, titleMaxChars)); err != nil {
			slog.Warn("Failed to derive conversation title", "conversationId", conv.ID, "error", err)
		}
	}

	working, err := e.buildHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	finalText, err := e.runLoop(ctx, conv.ID, model, working, sink)
	if err != nil {
		return nil, err
	}

	bubbles := SplitBubbles(finalText)
	if len(bubbles) == 0 {
		bubbles = []string{fallbackBubble}
	}
	messageIDs, err := e.streamBubbles(ctx, conv.ID, bubbles, sink)
	if err != nil {
		return nil, err
	}
	e.observe("ASSISTANT", conv.ID, strings.Join(bubbles, "\n\n"))

	sink.Emit(api.DoneEvent(conv.ID, messageIDs))
	return &TurnResult{
		ConversationID: conv.ID,
		MessageIDs:     messageIDs,
		Bubbles:        bubbles,
	}, nil
}

// runLoop performs the bounded LLM↔tools loop and returns the accumulated
// final assistant text.
func (e *Engine) runLoop(ctx context.Context, conversationID, model string, working []llm.Message, sink api.EventSink) (string, error) {
	toolDefs := e.toolDefs()
	var finalParts []string

	for iteration := 0; iteration < maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		assistant, err := e.client.Chat(ctx, model, working, toolDefs)
		if err != nil {
			return "", err
		}
		if assistant == nil {
			break
		}
		assistant.Content = stripThinkTags(assistant.Content)

		if len(assistant.ToolCalls) == 0 {
			if assistant.Content != "" {
				finalParts = append(finalParts, assistant.Content)
			}
			break
		}

		working = append(working, *assistant)
		if assistant.Content != "" {
			finalParts = append(finalParts, assistant.Content)
		}

		for _, tc := range assistant.ToolCalls {
			toolMsg, err := e.dispatchToolCall(ctx, conversationID, tc, sink)
			if err != nil {
				return "", err
			}
			working = append(working, toolMsg)
		}
	}
	return strings.Join(finalParts, "\n\n"), nil
}

// dispatchToolCall records, runs and completes one tool call, emitting the
// started → output → finished event triple. A failing tool is not a turn
// failure; the error payload is fed back to the model.
func (e *Engine) dispatchToolCall(ctx context.Context, conversationID string, tc llm.ToolCall, sink api.EventSink) (llm.Message, error) {
	record, err := e.store.AddToolCall(ctx, conversationID, tc.Name, tc.Arguments)
	if err != nil {
		return llm.Message{}, err
	}
	sink.Emit(api.ToolStartedEvent(record.ID, tc.Name, tc.Arguments))
	e.observe("TOOL", conversationID, fmt.Sprintf("%s %s", tc.Name, compactPreview(tc.Arguments, 120)))

	// Malformed argument JSON degrades to an empty object instead of
	// failing the call outright.
	rawArgs := []byte(tc.Arguments)
	var probe any
	if len(rawArgs) == 0 || json.Unmarshal(rawArgs, &probe) != nil {
		rawArgs = []byte("{}")
	}

	result, runErr := e.tools.Run(ctx, tc.Name, rawArgs)

	var output string
	ok := runErr == nil
	if ok {
		encoded, err := json.Marshal(result)
		if err != nil {
			ok = false
			runErr = fmt.Errorf("failed to encode tool result: %w", err)
		} else {
			output = string(encoded)
		}
	}
	if !ok {
		encoded, _ := json.Marshal(map[string]string{"error": runErr.Error()})
		output = string(encoded)
		slog.Warn("Tool call failed", "tool", tc.Name, "error", runErr)
	}

	if err := e.store.CompleteToolCall(ctx, record.ID, ok, output); err != nil {
		return llm.Message{}, err
	}
	sink.Emit(api.ToolOutputEvent(record.ID, truncateRunes(output, toolOutputPreview)))
	sink.Emit(api.ToolFinishedEvent(record.ID, ok, output))

	return llm.ToolResultMessage(tc.ID, tc.Name, output), nil
}

// streamBubbles persists each bubble as an assistant message sharing one
// bubble-group id and streams its text in paced chunks.
func (e *Engine) streamBubbles(ctx context.Context, conversationID string, bubbles []string, sink api.EventSink) ([]string, error) {
	groupID := utils.GenerateID()
	messageIDs := make([]string, 0, len(bubbles))

	for i, bubble := range bubbles {
		msg, err := e.store.AddMessage(ctx, conversationID, store.RoleAssistant, bubble, store.MessageOptions{
			BubbleGroupID: groupID,
		})
		if err != nil {
			return nil, err
		}
		messageIDs = append(messageIDs, msg.ID)

		sink.Emit(api.BubbleStartEvent(msg.ID))
		runes := []rune(bubble)
		for start := 0; start < len(runes); start += e.tokenChunk {
			end := start + e.tokenChunk
			if end > len(runes) {
				end = len(runes)
			}
			sink.Emit(api.TokenEvent(msg.ID, string(runes[start:end])))
			if e.tokenDelay > 0 && end < len(runes) {
				time.Sleep(e.tokenDelay)
			}
		}
		if e.bubbleDelay > 0 && i < len(bubbles)-1 {
			time.Sleep(e.bubbleDelay)
		}
	}
	return messageIDs, nil
}

// buildHistory converts the persisted transcript into provider messages,
// rewriting reply-to context and appending attachment summaries, with the
// system prompt prepended.
func (e *Engine) buildHistory(ctx context.Context, conversationID string) ([]llm.Message, error) {
	msgs, err := e.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*store.Message, len(msgs))
	for i := range msgs {
		byID[msgs[i].ID] = &msgs[i]
	}

	history := make([]llm.Message, 0, len(msgs)+1)
	history = append(history, llm.SystemMessage(e.prompt.Build()))

	for _, m := range msgs {
		switch m.Role {
		case store.RoleAssistant:
			history = append(history, llm.AssistantMessage(m.Content))
		case store.RoleUser:
			content := m.Content
			if block := attachmentBlock(m.Attachments); block != "" {
				content += "\n\n" + block
			}
			if m.ReplyToID != "" {
				if replied, ok := byID[m.ReplyToID]; ok {
					content = fmt.Sprintf("Context from replied message: %q\n\nUser reply: %s",
						compactPreview(replied.Content, replyPreviewChars), content)
				}
			}
			history = append(history, llm.UserMessage(content))
		}
	}
	return history, nil
}

// attachmentBlock renders a human-readable summary of the attachments.
func attachmentBlock(attachments []store.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, att := range attachments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch {
		case att.Kind == utils.KindText && att.TextExcerpt != "":
			fmt.Fprintf(&sb, "Attached text file %q:\n%s", att.Name, truncateRunes(att.TextExcerpt, excerptMaxChars))
		case att.Kind == utils.KindImage:
			fmt.Fprintf(&sb, "[image file attached by user: %s]", att.Name)
		default:
			fmt.Fprintf(&sb, "[file attached by user: %s (%s, %d bytes)]", att.Name, att.MimeType, att.Size)
		}
	}
	return sb.String()
}

func (e *Engine) toolDefs() []llm.ToolDef {
	all := e.tools.GetAll()
	defs := make([]llm.ToolDef, 0, len(all))
	for _, t := range all {
		defs = append(defs, llm.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
			Required:    t.RequiredParameters(),
		})
	}
	return defs
}

func (e *Engine) observe(messageType, channelID, content string) {
	if e.monitor == nil {
		return
	}
	e.monitor.OnMessage(monitor.MonitorMessage{
		Timestamp:   time.Now(),
		MessageType: messageType,
		ChannelID:   channelID,
		Username:    "local",
		Content:     compactPreview(content, 200),
	})
}

func stripThinkTags(content string) string {
	content = thinkBlock.ReplaceAllString(content, "")
	content = thinkTag.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
