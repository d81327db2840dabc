// Package server exposes the HTTP surface: the SSE chat stream, conversation
// and message management, trigger runs, channel control and runtime
// diagnostics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"shrimp/pkg/agent"
	"shrimp/pkg/channels"
	"shrimp/pkg/config"
	"shrimp/pkg/shell"
	"shrimp/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server wires the engine and its collaborators behind a ServeMux.
type Server struct {
	cfg      *config.Config
	store    store.Store
	engine   *agent.Engine
	shells   *shell.Manager
	channels *channels.Manager
	http     *http.Server
}

func New(cfg *config.Config, st store.Store, engine *agent.Engine, shells *shell.Manager, chMgr *channels.Manager) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		shells:   shells,
		channels: chMgr,
	}
	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.routes(),
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat/stream", s.handleChatStream)

	mux.HandleFunc("GET /api/conversations", s.handleListConversations)
	mux.HandleFunc("POST /api/conversations", s.handleCreateConversation)
	mux.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("PATCH /api/conversations/{id}", s.handleRenameConversation)
	mux.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	mux.HandleFunc("PATCH /api/messages/{id}", s.handleEditMessage)
	mux.HandleFunc("DELETE /api/messages/{id}", s.handleDeleteMessage)

	mux.HandleFunc("GET /api/runtime", s.handleRuntime)

	mux.HandleFunc("GET /api/channels/status", s.handleChannelStatus)
	mux.HandleFunc("POST /api/channels/start", s.handleChannelStart)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/jobs", s.handleRunJob)

	return mux
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "error", err)
	}
}

// writeError maps the error taxonomy onto status codes: bad input is 400,
// a missing entity is 404, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, agent.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
