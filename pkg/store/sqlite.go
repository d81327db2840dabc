package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
	"shrimp/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	model TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	reply_to_id TEXT,
	bubble_group_id TEXT,
	attachments TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS tool_calls (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	tool TEXT NOT NULL,
	args TEXT NOT NULL,
	status TEXT NOT NULL,
	result TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_calls_conversation ON tool_calls(conversation_id, created_at);
CREATE TABLE IF NOT EXISTS channel_links (
	channel TEXT NOT NULL,
	external_chat_id TEXT NOT NULL,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (channel, external_chat_id)
);
CREATE TABLE IF NOT EXISTS trigger_runs (
	id TEXT PRIMARY KEY,
	trigger_kind TEXT NOT NULL,
	instruction TEXT NOT NULL,
	model TEXT,
	payload TEXT,
	status TEXT NOT NULL,
	output TEXT,
	final_result TEXT,
	error TEXT,
	conversation_id TEXT,
	created_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
`

// OpenSQLite opens (and creates if needed) the database file at path and
// applies the schema. The pool is capped at one connection so writes are
// serialized and per-connection pragmas stay in effect.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.Model, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, model, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now().UTC()
	c := &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, model, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Model, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) UpsertConversation(ctx context.Context, id, model string) (*Conversation, error) {
	if id != "" {
		existing, err := s.GetConversation(ctx, id)
		if err == nil {
			now := time.Now().UTC()
			if _, err := s.db.ExecContext(ctx,
				`UPDATE conversations SET model = ?, updated_at = ? WHERE id = ?`,
				model, now, id); err != nil {
				return nil, fmt.Errorf("failed to update conversation: %w", err)
			}
			existing.Model = model
			existing.UpdatedAt = now
			return existing, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.CreateConversation(ctx, model, "")
}

func (s *SQLiteStore) RenameConversation(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetConversationTitleIfDefault(ctx context.Context, id, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ? WHERE id = ? AND title = ?`,
		title, id, DefaultTitle)
	if err != nil {
		return fmt.Errorf("failed to set conversation title: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID, role, content string, opts MessageOptions) (*Message, error) {
	m := &Message{
		ID:             utils.GenerateID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		ReplyToID:      opts.ReplyToID,
		BubbleGroupID:  opts.BubbleGroupID,
		Attachments:    opts.Attachments,
		CreatedAt:      time.Now().UTC(),
	}

	var attachments any
	if len(m.Attachments) > 0 {
		b, err := json.Marshal(m.Attachments)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attachments: %w", err)
		}
		attachments = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, reply_to_id, bubble_group_id, attachments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content,
		nullable(m.ReplyToID), nullable(m.BubbleGroupID), attachments, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	// Every append stamps the conversation's last-update time.
	if _, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, m.CreatedAt, conversationID); err != nil {
		return nil, fmt.Errorf("failed to bump conversation: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, reply_to_id, bubble_group_id, attachments, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var replyTo, bubbleGroup, attachments sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&replyTo, &bubbleGroup, &attachments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ReplyToID = replyTo.String
		m.BubbleGroupID = bubbleGroup.String
		if attachments.Valid && attachments.String != "" {
			if err := json.Unmarshal([]byte(attachments.String), &m.Attachments); err != nil {
				return nil, fmt.Errorf("failed to decode attachments: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateMessageContent(ctx context.Context, id, content string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) AddToolCall(ctx context.Context, conversationID, tool, args string) (*ToolCallRecord, error) {
	r := &ToolCallRecord{
		ID:             utils.GenerateID(),
		ConversationID: conversationID,
		Tool:           tool,
		Args:           args,
		Status:         StatusRunning,
		CreatedAt:      time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tool_calls (id, conversation_id, tool, args, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.ConversationID, r.Tool, r.Args, r.Status, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add tool call: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) CompleteToolCall(ctx context.Context, id string, ok bool, output string) error {
	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	// The WHERE guard makes the running→terminal transition single-shot.
	res, err := s.db.ExecContext(ctx,
		`UPDATE tool_calls SET status = ?, result = ? WHERE id = ? AND status = ?`,
		status, output, id, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete tool call: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListToolCalls(ctx context.Context, conversationID string) ([]ToolCallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, tool, args, status, result, created_at
		 FROM tool_calls WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool calls: %w", err)
	}
	defer rows.Close()

	var out []ToolCallRecord
	for rows.Next() {
		var r ToolCallRecord
		var result sql.NullString
		if err := rows.Scan(&r.ID, &r.ConversationID, &r.Tool, &r.Args, &r.Status, &result, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool call: %w", err)
		}
		r.Result = result.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetOrCreateChannelConversation(ctx context.Context, channel, externalChatID, model string) (*Conversation, error) {
	var conversationID string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id FROM channel_links WHERE channel = ? AND external_chat_id = ?`,
		channel, externalChatID).Scan(&conversationID)
	if err == nil {
		return s.GetConversation(ctx, conversationID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up channel link: %w", err)
	}

	c, err := s.CreateConversation(ctx, model, "")
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_links (channel, external_chat_id, conversation_id, created_at) VALUES (?, ?, ?, ?)`,
		channel, externalChatID, c.ID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to create channel link: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) CreateTriggerRun(ctx context.Context, trigger, instruction, model, payload string) (*TriggerRun, error) {
	r := &TriggerRun{
		ID:          uuid.New().String(),
		Trigger:     trigger,
		Instruction: instruction,
		Model:       model,
		Payload:     payload,
		Status:      StatusRunning,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_runs (id, trigger_kind, instruction, model, payload, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Trigger, r.Instruction, nullable(r.Model), nullable(r.Payload), r.Status, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create trigger run: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) CompleteTriggerRun(ctx context.Context, id string, ok bool, output, finalResult, errText string) error {
	status := StatusSuccess
	if !ok {
		status = StatusError
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET status = ?, output = ?, final_result = ?, error = ?, finished_at = ?
		 WHERE id = ? AND status = ?`,
		status, nullable(output), nullable(finalResult), nullable(errText), time.Now().UTC(), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete trigger run: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetTriggerRunConversationID(ctx context.Context, id, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trigger_runs SET conversation_id = ? WHERE id = ?`, conversationID, id)
	if err != nil {
		return fmt.Errorf("failed to set trigger run conversation: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) ListTriggerRuns(ctx context.Context, limit int) ([]TriggerRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trigger_kind, instruction, model, payload, status, output, final_result, error, conversation_id, created_at, finished_at
		 FROM trigger_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trigger runs: %w", err)
	}
	defer rows.Close()

	var out []TriggerRun
	for rows.Next() {
		r, err := scanTriggerRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetTriggerRun(ctx context.Context, id string) (*TriggerRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, trigger_kind, instruction, model, payload, status, output, final_result, error, conversation_id, created_at, finished_at
		 FROM trigger_runs WHERE id = ?`, id)
	r, err := scanTriggerRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func scanTriggerRun(scan func(dest ...any) error) (*TriggerRun, error) {
	var r TriggerRun
	var model, payload, output, finalResult, errText, conversationID sql.NullString
	var finishedAt sql.NullTime
	err := scan(&r.ID, &r.Trigger, &r.Instruction, &model, &payload, &r.Status,
		&output, &finalResult, &errText, &conversationID, &r.CreatedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan trigger run: %w", err)
	}
	r.Model = model.String
	r.Payload = payload.String
	r.Output = output.String
	r.FinalResult = finalResult.String
	r.Error = errText.String
	r.ConversationID = conversationID.String
	if finishedAt.Valid {
		t := finishedAt.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
