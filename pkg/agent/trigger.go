package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"shrimp/pkg/store"
)

const resultPreviewChars = 500

const triggerToolReminder = `You may use any available tools autonomously to complete this task without asking for confirmation. When you are done, wrap the final answer in <final_result>...</final_result> tags in your reply.`

var finalResultPattern = regexp.MustCompile(`(?is)<final_result>(.*?)</final_result>`)

// TriggerRequest is one disposable, non-streaming invocation of the engine.
type TriggerRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
	Trigger string `json:"trigger"`
	Payload string `json:"payload,omitempty"`
}

// TriggerResult is returned to the caller after the run completed.
type TriggerResult struct {
	Run            *store.TriggerRun `json:"run"`
	ConversationID string            `json:"conversationId"`
	FinalResult    string            `json:"finalResult,omitempty"`
	ResultPreview  string            `json:"resultPreview"`
}

// triggerOutput is the serialized output stored on a successful run.
type triggerOutput struct {
	Bubbles        []string `json:"bubbles"`
	ConversationID string   `json:"conversationId"`
	FinalResult    string   `json:"finalResult,omitempty"`
}

// RunTrigger wraps a full turn in a TriggerRun lifecycle. The run is
// non-streaming; its outcome is persisted even when the turn fails.
func (e *Engine) RunTrigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrBadRequest)
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = store.TriggerManual
	}

	run, err := e.store.CreateTriggerRun(ctx, trigger, message, req.Model, req.Payload)
	if err != nil {
		return nil, err
	}

	turn, err := e.RunTurn(ctx, TurnRequest{
		Message: synthesizeRunMessage(message, req.Payload),
		Model:   req.Model,
	}, nil)
	if err != nil {
		if completeErr := e.store.CompleteTriggerRun(ctx, run.ID, false, "", "", err.Error()); completeErr != nil {
			return nil, fmt.Errorf("turn failed (%v) and run could not be marked: %w", err, completeErr)
		}
		return nil, err
	}

	fullText := strings.Join(turn.Bubbles, "\n\n")
	finalResult := ExtractFinalResult(fullText)

	if err := e.store.SetTriggerRunConversationID(ctx, run.ID, turn.ConversationID); err != nil {
		return nil, err
	}
	output, err := json.Marshal(triggerOutput{
		Bubbles:        turn.Bubbles,
		ConversationID: turn.ConversationID,
		FinalResult:    finalResult,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode run output: %w", err)
	}
	if err := e.store.CompleteTriggerRun(ctx, run.ID, true, string(output), finalResult, ""); err != nil {
		return nil, err
	}

	reloaded, err := e.store.GetTriggerRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &TriggerResult{
		Run:            reloaded,
		ConversationID: turn.ConversationID,
		FinalResult:    finalResult,
		ResultPreview:  truncateRunes(fullText, resultPreviewChars),
	}, nil
}

// synthesizeRunMessage combines the instruction, the pretty-printed payload
// and the tool-autonomy reminder into the turn message.
func synthesizeRunMessage(instruction, payload string) string {
	var sb strings.Builder
	sb.WriteString(instruction)

	if payload != "" {
		pretty := payload
		var decoded any
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			if b, err := json.MarshalIndent(decoded, "", "  "); err == nil {
				pretty = string(b)
			}
		}
		sb.WriteString("\n\nInput payload:\n```json\n")
		sb.WriteString(pretty)
		sb.WriteString("\n```")
	}

	sb.WriteString("\n\n")
	sb.WriteString(triggerToolReminder)
	return sb.String()
}

// ExtractFinalResult returns the whitespace-collapsed contents of the first
// final_result block, or empty when none is present.
func ExtractFinalResult(text string) string {
	match := finalResultPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return collapseWhitespace(match[1])
}
