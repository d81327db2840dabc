package store

import (
	"context"
	"errors"
	"time"
)

// DefaultTitle is the title a conversation carries until it is renamed,
// either explicitly or by deriving one from the first user message.
const DefaultTitle = "New chat"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Terminal and transient statuses shared by tool calls and trigger runs.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Trigger kinds.
const (
	TriggerManual  = "manual"
	TriggerAPI     = "api"
	TriggerWebhook = "webhook"
)

// ErrNotFound reports a lookup against an id that does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one chat thread and its model binding.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment is an immutable file reference carried by a message.
// Kind is one of "image", "text" or "binary"; DataURL is populated for
// images, TextExcerpt for text files.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	Size        int64  `json:"size"`
	Kind        string `json:"kind"`
	DataURL     string `json:"dataUrl,omitempty"`
	TextExcerpt string `json:"textExcerpt,omitempty"`
}

// Message is one transcript entry. Consecutive assistant bubbles produced by
// a single turn share a BubbleGroupID.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Role           string       `json:"role"`
	Content        string       `json:"content"`
	ReplyToID      string       `json:"replyToId,omitempty"`
	BubbleGroupID  string       `json:"bubbleGroupId,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// MessageOptions carries the optional attributes of AddMessage.
type MessageOptions struct {
	ReplyToID     string
	BubbleGroupID string
	Attachments   []Attachment
}

// ToolCallRecord is the persisted trace of one tool dispatch. It is created
// as "running" and reaches "success" or "error" exactly once.
type ToolCallRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Tool           string    `json:"tool"`
	Args           string    `json:"args"`
	Status         string    `json:"status"`
	Result         string    `json:"result,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ChannelLink binds an external chat (Telegram chat id, WhatsApp JID) to a
// conversation so follow-up messages land in the same thread.
type ChannelLink struct {
	Channel        string    `json:"channel"`
	ExternalChatID string    `json:"externalChatId"`
	ConversationID string    `json:"conversationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TriggerRun is one disposable, non-streaming invocation of the turn engine.
type TriggerRun struct {
	ID             string     `json:"id"`
	Trigger        string     `json:"trigger"`
	Instruction    string     `json:"instruction"`
	Model          string     `json:"model,omitempty"`
	Payload        string     `json:"payload,omitempty"`
	Status         string     `json:"status"`
	Output         string     `json:"output,omitempty"`
	FinalResult    string     `json:"finalResult,omitempty"`
	Error          string     `json:"error,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// Store is the typed persistence capability the rest of the core consumes.
// Implementations serialize writes internally; callers treat each operation
// as an atomic point.
type Store interface {
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	CreateConversation(ctx context.Context, model, title string) (*Conversation, error)
	// UpsertConversation creates a conversation when id is empty or unknown;
	// otherwise it bumps the model and updatedAt of the existing one.
	UpsertConversation(ctx context.Context, id, model string) (*Conversation, error)
	RenameConversation(ctx context.Context, id, title string) error
	// SetConversationTitleIfDefault renames only while the current title still
	// equals DefaultTitle. Used to derive a title from the first user message.
	SetConversationTitleIfDefault(ctx context.Context, id, title string) error
	// DeleteConversation removes the conversation and cascades to its
	// messages, tool calls and channel links.
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, conversationID, role, content string, opts MessageOptions) (*Message, error)
	// ListMessages returns the conversation's messages ascending by creation
	// time (append order).
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	UpdateMessageContent(ctx context.Context, id, content string) error
	DeleteMessage(ctx context.Context, id string) error

	AddToolCall(ctx context.Context, conversationID, tool, args string) (*ToolCallRecord, error)
	// CompleteToolCall transitions a running record to success (ok) or error.
	// A record can only be completed once.
	CompleteToolCall(ctx context.Context, id string, ok bool, output string) error
	ListToolCalls(ctx context.Context, conversationID string) ([]ToolCallRecord, error)

	GetOrCreateChannelConversation(ctx context.Context, channel, externalChatID, model string) (*Conversation, error)

	CreateTriggerRun(ctx context.Context, trigger, instruction, model, payload string) (*TriggerRun, error)
	CompleteTriggerRun(ctx context.Context, id string, ok bool, output, finalResult, errText string) error
	SetTriggerRunConversationID(ctx context.Context, id, conversationID string) error
	ListTriggerRuns(ctx context.Context, limit int) ([]TriggerRun, error)
	GetTriggerRun(ctx context.Context, id string) (*TriggerRun, error)

	Close() error
}
