package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "gpt-4.1-mini", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, c.Title)
	assert.NotEmpty(t, c.ID)

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, "gpt-4.1-mini", got.Model)
}

func TestGetConversationNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertConversationUnknownIDCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.UpsertConversation(ctx, "never-seen", "gpt-4.1-mini")
	require.NoError(t, err)
	assert.NotEqual(t, "never-seen", c.ID)
	assert.Equal(t, DefaultTitle, c.Title)

	again, err := s.UpsertConversation(ctx, c.ID, "gpt-5")
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)
	assert.Equal(t, "gpt-5", again.Model)
}

func TestMessagesKeepAppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "m", "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three", "four"} {
		_, err := s.AddMessage(ctx, c.ID, RoleUser, content, MessageOptions{})
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "two", msgs[1].Content)
	assert.Equal(t, "three", msgs[2].Content)
	assert.Equal(t, "four", msgs[3].Content)
}

func TestMessageAttachmentsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "m", "")
	require.NoError(t, err)

	att := Attachment{
		ID:       "a1",
		Name:     "photo.png",
		MimeType: "image/png",
		Size:     1234,
		Kind:     "image",
		DataURL:  "data:image/png;base64,iVBORw0KGgo=",
	}
	m, err := s.AddMessage(ctx, c.ID, RoleUser, "look at this", MessageOptions{
		ReplyToID:   "prev",
		Attachments: []Attachment{att},
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, m.ID, msgs[0].ID)
	assert.Equal(t, "prev", msgs[0].ReplyToID)
	require.Len(t, msgs[0].Attachments, 1)
	assert.Equal(t, att, msgs[0].Attachments[0])
}

func TestDeleteConversationCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "m", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, RoleUser, "hello", MessageOptions{})
	require.NoError(t, err)
	_, err = s.AddToolCall(ctx, c.ID, "run_command", `{"command":"ls"}`)
	require.NoError(t, err)

	require.NoError(t, s.DeleteConversation(ctx, c.ID))

	msgs, err := s.ListMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	calls, err := s.ListToolCalls(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestSetConversationTitleIfDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "m", "")
	require.NoError(t, err)

	require.NoError(t, s.SetConversationTitleIfDefault(ctx, c.ID, "First question"))
	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "First question", got.Title)

	// Once renamed, the derived title must not overwrite it.
	require.NoError(t, s.SetConversationTitleIfDefault(ctx, c.ID, "Second question"))
	got, err = s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "First question", got.Title)
}

func TestCompleteToolCallExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "m", "")
	require.NoError(t, err)
	r, err := s.AddToolCall(ctx, c.ID, "read_file", `{"path":"/tmp/x"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)

	require.NoError(t, s.CompleteToolCall(ctx, r.ID, true, "contents"))
	assert.ErrorIs(t, s.CompleteToolCall(ctx, r.ID, false, "boom"), ErrNotFound)

	calls, err := s.ListToolCalls(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, StatusSuccess, calls[0].Status)
	assert.Equal(t, "contents", calls[0].Result)
}

func TestGetOrCreateChannelConversationReusesLink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateChannelConversation(ctx, "telegram", "12345", "m")
	require.NoError(t, err)
	second, err := s.GetOrCreateChannelConversation(ctx, "telegram", "12345", "m")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := s.GetOrCreateChannelConversation(ctx, "whatsapp", "12345", "m")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestTriggerRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r, err := s.CreateTriggerRun(ctx, TriggerAPI, "count the files", "gpt-4.1-mini", `{"dir":"/tmp"}`)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, r.Status)

	require.NoError(t, s.SetTriggerRunConversationID(ctx, r.ID, "conv-1"))
	require.NoError(t, s.CompleteTriggerRun(ctx, r.ID, true, "There are 3 files.", "3", ""))

	got, err := s.GetTriggerRun(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, "3", got.FinalResult)
	assert.Equal(t, "conv-1", got.ConversationID)
	require.NotNil(t, got.FinishedAt)

	// A finished run stays finished.
	assert.ErrorIs(t, s.CompleteTriggerRun(ctx, r.ID, false, "", "", "late"), ErrNotFound)

	runs, err := s.ListTriggerRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, r.ID, runs[0].ID)
}
