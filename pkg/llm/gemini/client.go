// Package gemini adapts the Google GenAI SDK to the llm.ChatClient
// interface.
package gemini

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"google.golang.org/genai"

	"shrimp/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps the GenAI SDK for the Gemini API backend.
type Client struct {
	client *genai.Client
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "unavailable") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused")
}

// Chat performs one non-streaming round-trip.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef) (*llm.Message, error) {
	contents, systemInstruction, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}
	genaiTools, err := convertTools(tools)
	if err != nil {
		return nil, err
	}
	if len(genaiTools) > 0 {
		cfg.Tools = genaiTools
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	out := &llm.Message{Role: llm.RoleAssistant}
	var text strings.Builder
	callSeq := 0
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("failed to encode function args: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        fmt.Sprintf("call_%d", callSeq),
				Name:      part.FunctionCall.Name,
				Arguments: string(args),
			})
			callSeq++
		}
	}
	out.Content = text.String()
	return out, nil
}

func convertMessages(messages []llm.Message) ([]*genai.Content, *genai.Content, error) {
	var contents []*genai.Content
	var systemInstruction *genai.Content

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content}},
			}
		case llm.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case llm.RoleAssistant:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, &genai.Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var args map[string]any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
						return nil, nil, fmt.Errorf("failed to decode tool arguments: %w", err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: tc.Name,
						Args: args,
					},
				})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: "model", Parts: parts})
			}
		case llm.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     m.Name,
						Response: map[string]any{"result": m.Content},
					},
				}},
			})
		}
	}
	return contents, systemInstruction, nil
}

// convertTools maps each tool's schema into genai.Schema via a JSON round
// trip.
func convertTools(tools []llm.ToolDef) ([]*genai.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	fds := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.SchemaObject())
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema for %s: %w", t.Name, err)
		}
		var schema genai.Schema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("failed to convert schema for %s: %w", t.Name, err)
		}
		fds = append(fds, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  &schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fds}}, nil
}
