package server

import (
	"context"
	stdjson "encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"shrimp/pkg/agent"
	"shrimp/pkg/shell"
	"shrimp/pkg/store"
)

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.ListConversations(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": convs})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.CreateConversation(r.Context(), s.cfg.DefaultModel, store.DefaultTitle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toolCalls, err := s.store.ListToolCalls(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
		"toolCalls":    toolCalls,
	})
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		badRequest(w, "title is empty")
		return
	}
	if err := s.store.RenameConversation(r.Context(), r.PathValue("id"), title); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"renamed": true})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteConversation(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.store.UpdateMessageContent(r.Context(), r.PathValue("id"), body.Content); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteMessage(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleRuntime(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()

	dbStatus := "ok"
	if _, err := s.store.ListConversations(r.Context()); err != nil {
		dbStatus = "error: " + err.Error()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"platform":      shell.OSName(),
		"shell":         shell.DefaultShell(),
		"hostname":      hostname,
		"dbPath":        s.cfg.DBPath,
		"dbStatus":      dbStatus,
		"defaultModel":  s.cfg.DefaultModel,
		"allowedModels": s.cfg.AllowedModels,
		"shellSessions": s.shells.Sessions(),
	})
}

func (s *Server) handleChannelStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.channels.Status()})
}

func (s *Server) handleChannelStart(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Channel string `json:"channel"`
	}
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	var err error
	switch body.Channel {
	case "all":
		err = s.channels.StartAll(r.Context())
	case "":
		badRequest(w, "channel is required")
		return
	default:
		err = s.channels.Start(r.Context(), body.Channel)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": s.channels.Status()})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.store.ListTriggerRuns(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// jobRequest is the body of POST /api/jobs. The payload is kept as raw JSON
// so callers can pass arbitrary structured input.
type jobRequest struct {
	Message string              `json:"message"`
	Model   string              `json:"model"`
	Trigger string              `json:"trigger"`
	Payload stdjson.RawMessage `json:"payload"`
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	var body jobRequest
	if err := decodeBody(r, &body); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	trigger := body.Trigger
	if trigger == "" {
		trigger = store.TriggerAPI
	}

	// The turn can take minutes; do not bind it to the request context so a
	// dropped caller does not abandon a half-finished run.
	result, err := s.engine.RunTrigger(context.Background(), agent.TriggerRequest{
		Message: body.Message,
		Model:   body.Model,
		Trigger: trigger,
		Payload: string(body.Payload),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
