//go:build !windows

package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrimp/pkg/api"
	"shrimp/pkg/config"
	"shrimp/pkg/llm"
	"shrimp/pkg/memory"
	"shrimp/pkg/prompt"
	"shrimp/pkg/shell"
	"shrimp/pkg/store"
	"shrimp/pkg/tools"
)

// fakeClient replays a scripted sequence of responses and records what it
// was asked.
type fakeClient struct {
	responses []*llm.Message
	err       error
	calls     [][]llm.Message
}

func (f *fakeClient) Chat(ctx context.Context, model string, messages []llm.Message, defs []llm.ToolDef) (*llm.Message, error) {
	f.calls = append(f.calls, append([]llm.Message(nil), messages...))
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return llmPtr(llm.AssistantMessage("")), nil
	}
	next := f.responses[0]
	f.responses = f.responses[1:]
	return next, nil
}

func (f *fakeClient) IsTransientError(err error) bool { return false }

func llmPtr(m llm.Message) *llm.Message { return &m }

type testRig struct {
	engine *Engine
	store  *store.SQLiteStore
	client *fakeClient
	events []api.Event
}

func (r *testRig) sink() api.EventSink {
	return func(ev api.Event) { r.events = append(r.events, ev) }
}

func (r *testRig) eventTypes() []string {
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestRig(t *testing.T, client *fakeClient) *testRig {
	t.Helper()

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sh := shell.NewManager(shell.Options{})
	t.Cleanup(sh.Shutdown)
	mem := memory.NewStore(filepath.Join(t.TempDir(), "mem.json"))

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterAll(reg, sh, mem))

	cfg := config.DefaultConfig()
	engine := NewEngine(st, client, reg, prompt.NewBuilder(mem), cfg, nil)
	engine.SetPacing(20, 0, 0)

	return &testRig{engine: engine, store: st, client: client}
}

func TestRunTurnRejectsEmptyMessage(t *testing.T) {
	rig := newTestRig(t, &fakeClient{})
	_, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "   "}, nil)
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestRunTurnSimpleReply(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{llmPtr(llm.AssistantMessage("Hello there."))},
	})

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "hi"}, rig.sink())
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello there."}, res.Bubbles)
	require.Len(t, res.MessageIDs, 1)

	// conversation → bubble_start → token(s) → assistant_done
	types := rig.eventTypes()
	assert.Equal(t, api.EventConversation, types[0])
	assert.Equal(t, api.EventBubbleStart, types[1])
	assert.Equal(t, api.EventToken, types[2])
	assert.Equal(t, api.EventAssistantDone, types[len(types)-1])

	// Transcript: user then assistant, title derived from the first message.
	msgs, err := rig.store.ListMessages(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.NotEmpty(t, msgs[1].BubbleGroupID)

	conv, err := rig.store.GetConversation(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "hi", conv.Title)
}

func TestRunTurnSystemPromptPrepended(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{llmPtr(llm.AssistantMessage("ok"))},
	})

	_, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "ping"}, nil)
	require.NoError(t, err)

	require.Len(t, rig.client.calls, 1)
	first := rig.client.calls[0][0]
	assert.Equal(t, llm.RoleSystem, first.Role)
	assert.Contains(t, first.Content, "You are Shrimp")
}

func TestRunTurnToolLoop(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        "call_1",
					Name:      "run_command",
					Arguments: `{"command":"echo hello"}`,
				}},
			},
			llmPtr(llm.AssistantMessage("The command printed hello.")),
		},
	})

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "run echo hello"}, rig.sink())
	require.NoError(t, err)
	assert.Equal(t, []string{"The command printed hello."}, res.Bubbles)

	// Tool events arrive as started → output → finished, before any bubble.
	types := rig.eventTypes()
	assert.Equal(t, []string{
		api.EventConversation,
		api.EventToolCallStarted,
		api.EventToolCallOutput,
		api.EventToolCallFinished,
		api.EventBubbleStart,
		api.EventToken,
		api.EventToken,
		api.EventAssistantDone,
	}, types)

	// The tool record reached success with the command output recorded.
	calls, err := rig.store.ListToolCalls(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "run_command", calls[0].Tool)
	assert.Equal(t, store.StatusSuccess, calls[0].Status)
	assert.Contains(t, calls[0].Result, "hello")

	// The second LLM round saw the assistant tool call and the tool result.
	require.Len(t, rig.client.calls, 2)
	second := rig.client.calls[1]
	var sawToolResult bool
	for _, m := range second {
		if m.Role == llm.RoleTool && m.ToolCallID == "call_1" {
			sawToolResult = true
			assert.Contains(t, m.Content, "hello")
		}
	}
	assert.True(t, sawToolResult)
}

func TestRunTurnToolFailureFedBack(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        "call_1",
					Name:      "read_file",
					Arguments: `{"path":"/definitely/not/here.txt"}`,
				}},
			},
			llmPtr(llm.AssistantMessage("That file does not exist.")),
		},
	})

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "read it"}, rig.sink())
	require.NoError(t, err)

	calls, err := rig.store.ListToolCalls(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, store.StatusError, calls[0].Status)
	assert.Contains(t, calls[0].Result, "error")

	for _, ev := range rig.events {
		if ev.Type == api.EventToolCallFinished {
			require.NotNil(t, ev.OK)
			assert.False(t, *ev.OK)
		}
	}
}

func TestRunTurnMalformedArgumentsDegradeToEmptyObject(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			{
				Role: llm.RoleAssistant,
				ToolCalls: []llm.ToolCall{{
					ID:        "call_1",
					Name:      "list_system_prompt_memory",
					Arguments: `{not json`,
				}},
			},
			llmPtr(llm.AssistantMessage("Memory is empty.")),
		},
	})

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "list memory"}, nil)
	require.NoError(t, err)

	calls, err := rig.store.ListToolCalls(context.Background(), res.ConversationID)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, store.StatusSuccess, calls[0].Status)
}

func TestRunTurnLoopBoundedAtEightIterations(t *testing.T) {
	client := &fakeClient{}
	// Every round asks for another tool call; the loop must cut off.
	for i := 0; i < 20; i++ {
		client.responses = append(client.responses, &llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      "list_system_prompt_memory",
				Arguments: `{}`,
			}},
		})
	}
	rig := newTestRig(t, client)

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "loop forever"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Done."}, res.Bubbles)

	calls, err := rig.store.ListToolCalls(context.Background(), res.ConversationID)
	require.NoError(t, err)
	assert.Len(t, calls, 8)
	assert.Len(t, rig.client.calls, 8)
}

func TestRunTurnStripsThinkTags(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			llmPtr(llm.AssistantMessage("<think>secret reasoning</think>The answer is 4.")),
		},
	})

	res, err := rig.engine.RunTurn(context.Background(), TurnRequest{Message: "2+2?"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"The answer is 4."}, res.Bubbles)
}

func TestRunTurnErrorPersistsNothingExtra(t *testing.T) {
	rig := newTestRig(t, &fakeClient{err: errors.New("upstream down")})

	_, err := rig.engine.RunTurn(context.Background(), TurnRequest{
		ConversationID: "",
		Message:        "hello",
	}, rig.sink())
	require.ErrorContains(t, err, "upstream down")

	// The conversation and user message exist; no assistant message does.
	convs, err := rig.store.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)
	msgs, err := rig.store.ListMessages(context.Background(), convs[0].ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
}

func TestRunTurnReplyToContextRewrite(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			llmPtr(llm.AssistantMessage("First answer.")),
			llmPtr(llm.AssistantMessage("Second answer.")),
		},
	})
	ctx := context.Background()

	first, err := rig.engine.RunTurn(ctx, TurnRequest{Message: "remember the deploy key location"}, nil)
	require.NoError(t, err)

	msgs, err := rig.store.ListMessages(ctx, first.ConversationID)
	require.NoError(t, err)
	repliedID := msgs[1].ID // the assistant bubble

	_, err = rig.engine.RunTurn(ctx, TurnRequest{
		ConversationID:   first.ConversationID,
		Message:          "where was it again?",
		ReplyToMessageID: repliedID,
	}, nil)
	require.NoError(t, err)

	lastCall := rig.client.calls[len(rig.client.calls)-1]
	lastUser := lastCall[len(lastCall)-1]
	assert.Equal(t, llm.RoleUser, lastUser.Role)
	assert.Contains(t, lastUser.Content, `Context from replied message: "First answer."`)
	assert.Contains(t, lastUser.Content, "User reply: where was it again?")
}

func TestRunTurnAttachmentsSummarized(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{llmPtr(llm.AssistantMessage("Looks fine."))},
	})

	_, err := rig.engine.RunTurn(context.Background(), TurnRequest{
		Message: "check these",
		Attachments: []store.Attachment{
			{ID: "a1", Name: "notes.txt", Kind: "text", TextExcerpt: "line one\nline two"},
			{ID: "a2", Name: "shot.png", Kind: "image", MimeType: "image/png"},
		},
	}, nil)
	require.NoError(t, err)

	userMsg := rig.client.calls[0][1]
	assert.Contains(t, userMsg.Content, `Attached text file "notes.txt"`)
	assert.Contains(t, userMsg.Content, "line one")
	assert.Contains(t, userMsg.Content, "[image file attached by user: shot.png]")
}

func TestRunTurnTitleNotOverwritten(t *testing.T) {
	rig := newTestRig(t, &fakeClient{
		responses: []*llm.Message{
			llmPtr(llm.AssistantMessage("One.")),
			llmPtr(llm.AssistantMessage("Two.")),
		},
	})
	ctx := context.Background()

	first, err := rig.engine.RunTurn(ctx, TurnRequest{Message: "first question"}, nil)
	require.NoError(t, err)
	_, err = rig.engine.RunTurn(ctx, TurnRequest{
		ConversationID: first.ConversationID,
		Message:        "second question",
	}, nil)
	require.NoError(t, err)

	conv, err := rig.store.GetConversation(ctx, first.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "first question", conv.Title)
}
