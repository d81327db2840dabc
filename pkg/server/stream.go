package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"shrimp/pkg/agent"
	"shrimp/pkg/api"
	"shrimp/pkg/store"
)

// chatStreamRequest is the body of POST /api/chat/stream.
type chatStreamRequest struct {
	ConversationID   string             `json:"conversationId"`
	Message          string             `json:"message"`
	Model            string             `json:"model"`
	ReplyToMessageID string             `json:"replyToMessageId"`
	Attachments      []store.Attachment `json:"attachments"`
}

// handleChatStream runs one turn and streams its events as Server-Sent
// Events. Every response, success or failure, ends with a [DONE] frame.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message is empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The engine emits from a single goroutine, but the write path is
	// shared with the terminal error frame below.
	var mu sync.Mutex
	writeFrame := func(payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	sink := func(ev api.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		writeFrame(data)
	}

	_, err := s.engine.RunTurn(r.Context(), agent.TurnRequest{
		ConversationID:   req.ConversationID,
		Message:          req.Message,
		Model:            req.Model,
		ReplyToMessageID: req.ReplyToMessageID,
		Attachments:      req.Attachments,
	}, sink)
	if err != nil {
		if data, merr := json.Marshal(api.ErrorEvent(err.Error())); merr == nil {
			writeFrame(data)
		}
	}

	writeFrame([]byte("[DONE]"))
}
