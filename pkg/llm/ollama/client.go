// Package ollama adapts the official Ollama API client to the
// llm.ChatClient interface for local models.
package ollama

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/ollama/ollama/api"

	"shrimp/pkg/llm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client wraps the Ollama API client.
type Client struct {
	client *api.Client
}

// NewClient connects to a local Ollama server. With an empty baseURL the
// standard OLLAMA_HOST environment resolution applies.
func NewClient(baseURL string) (*Client, error) {
	// Local generation can be slow; the HTTP client must not impose its own
	// response deadline.
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: 0,
		},
		Timeout: 0,
	}

	var client *api.Client
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama base URL: %w", err)
		}
		client = api.NewClient(u, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve ollama host: %w", err)
		}
	}
	return &Client{client: client}, nil
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "server busy") ||
		strings.Contains(msg, "503")
}

// Chat performs one non-streaming round-trip.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message, tools []llm.ToolDef) (*llm.Message, error) {
	apiTools, err := convertTools(tools)
	if err != nil {
		return nil, err
	}

	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: convertMessages(messages),
		Tools:    apiTools,
		Stream:   &stream,
	}

	var final *llm.Message
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		msg := &llm.Message{
			Role:    llm.RoleAssistant,
			Content: resp.Message.Content,
		}
		for i, tc := range resp.Message.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return fmt.Errorf("failed to encode tool arguments: %w", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
				ID:        fmt.Sprintf("call_%d", i),
				Name:      tc.Function.Name,
				Arguments: string(args),
			})
		}
		final = msg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if final == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}
	return final, nil
}

func convertMessages(messages []llm.Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		// Ollama carries tool results as plain "tool" role messages; the
		// call id is implicit in the ordering.
		out = append(out, api.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

// convertTools goes through a JSON round-trip into api.Tool, which matches
// the OpenAI function-tool wire shape.
func convertTools(tools []llm.ToolDef) ([]api.Tool, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	raw := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		raw = append(raw, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.SchemaObject(),
			},
		})
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tools: %w", err)
	}
	var out []api.Tool
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert tools: %w", err)
	}
	return out, nil
}
