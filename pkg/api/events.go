package api

// Stream event type discriminators. Every event emitted by the turn engine
// carries exactly one of these in its Type field; the remaining fields are
// populated per type as documented on Event.
const (
	EventConversation     = "conversation"
	EventBubbleStart      = "assistant_bubble_start"
	EventToken            = "token"
	EventToolCallStarted  = "tool_call_started"
	EventToolCallOutput   = "tool_call_output"
	EventToolCallFinished = "tool_call_finished"
	EventAssistantDone    = "assistant_done"
	EventError            = "error"
)

// Event is the tagged union streamed to front channels during a turn.
// Type selects the variant; unused fields stay zero and are omitted from JSON.
//
//	conversation           → ConversationID
//	assistant_bubble_start → BubbleID
//	token                  → BubbleID, Value
//	tool_call_started      → ToolCallID, Tool, Args
//	tool_call_output       → ToolCallID, Output
//	tool_call_finished     → ToolCallID, OK, Output
//	assistant_done         → ConversationID, MessageIDs
//	error                  → Message
type Event struct {
	Type           string   `json:"type"`
	ConversationID string   `json:"conversationId,omitempty"`
	BubbleID       string   `json:"bubbleId,omitempty"`
	Value          string   `json:"value,omitempty"`
	ToolCallID     string   `json:"toolCallId,omitempty"`
	Tool           string   `json:"tool,omitempty"`
	Args           string   `json:"args,omitempty"`
	OK             *bool    `json:"ok,omitempty"`
	Output         string   `json:"output,omitempty"`
	MessageIDs     []string `json:"messageIds,omitempty"`
	Message        string   `json:"message,omitempty"`
}

// EventSink receives a turn's events in emission order. A nil sink is valid
// and disables streaming (trigger runs use this).
type EventSink func(Event)

// Emit forwards an event to the sink when one is attached.
func (s EventSink) Emit(ev Event) {
	if s != nil {
		s(ev)
	}
}

// ConversationEvent builds the conversation announcement event.
func ConversationEvent(conversationID string) Event {
	return Event{Type: EventConversation, ConversationID: conversationID}
}

// BubbleStartEvent builds the event that opens an assistant bubble.
func BubbleStartEvent(bubbleID string) Event {
	return Event{Type: EventBubbleStart, BubbleID: bubbleID}
}

// TokenEvent builds a token chunk event for an open bubble.
func TokenEvent(bubbleID, value string) Event {
	return Event{Type: EventToken, BubbleID: bubbleID, Value: value}
}

// ToolStartedEvent builds the event marking the start of a tool dispatch.
func ToolStartedEvent(toolCallID, tool, args string) Event {
	return Event{Type: EventToolCallStarted, ToolCallID: toolCallID, Tool: tool, Args: args}
}

// ToolOutputEvent builds the event carrying a preview of a tool's output.
func ToolOutputEvent(toolCallID, output string) Event {
	return Event{Type: EventToolCallOutput, ToolCallID: toolCallID, Output: output}
}

// ToolFinishedEvent builds the terminal event for a tool dispatch.
func ToolFinishedEvent(toolCallID string, ok bool, output string) Event {
	return Event{Type: EventToolCallFinished, ToolCallID: toolCallID, OK: &ok, Output: output}
}

// DoneEvent builds the final event of a successful turn.
func DoneEvent(conversationID string, messageIDs []string) Event {
	return Event{Type: EventAssistantDone, ConversationID: conversationID, MessageIDs: messageIDs}
}

// ErrorEvent builds the terminal event of a failed turn.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
