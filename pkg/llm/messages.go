package llm

// Message roles used across all providers. Provider adapters translate these
// into their native shapes.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is one function invocation requested by the model. Arguments is
// the raw JSON argument object as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of the conversation sent to or received from a
// provider. ToolCallID and Name are set on RoleTool messages and identify
// the call the content answers.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolDef is the provider-neutral declaration of one callable tool.
// Parameters is the JSON-Schema "properties" object.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// SchemaObject returns the full JSON-Schema object for the tool's arguments.
func (d ToolDef) SchemaObject() map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": d.Parameters,
	}
	if len(d.Required) > 0 {
		schema["required"] = d.Required
	}
	return schema
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage answers one tool call with its serialized result.
func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID, Name: name}
}
