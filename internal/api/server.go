// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/user/foreman/internal/service"
	"github.com/user/foreman/internal/types"
)

const defaultEventLimit = 200

// Server is the HTTP API over the session and project services.
type Server struct {
	svc    *service.Services
	events types.EventStore
	mux    *http.ServeMux
}

// NewServer creates a Server backed by svc and the raw event log.
func NewServer(svc *service.Services, events types.EventStore) *Server {
	s := &Server{
		svc:    svc,
		events: events,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/messages", s.handleAppendMessage)
	s.mux.HandleFunc("PUT /api/sessions/{id}/status", s.handleSetStatus)
	s.mux.HandleFunc("GET /api/projects", s.handleListProjects)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("api listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var (
		sessions []*types.Session
		err      error
	)
	if q := r.URL.Query().Get("status"); q != "" {
		status, perr := types.ParseStatus(q)
		if perr != nil {
			writeError(w, http.StatusBadRequest, perr.Error())
			return
		}
		sessions, err = s.svc.Sessions.ListByStatus(r.Context(), status)
	} else {
		sessions, err = s.svc.Sessions.List(r.Context())
	}
	if err != nil {
		fail(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []*types.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Sessions.Get(r.Context(), types.SessionID(r.PathValue("id")))
	if err != nil {
		fail(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// createSessionRequest is the JSON body for POST /api/sessions.
type createSessionRequest struct {
	Project string `json:"project"`
	Title   string `json:"title"`
	Preset  string `json:"preset"`
	Status  string `json:"status"`
	Prompt  string `json:"prompt"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in := service.NewSession{
		Project: types.ProjectID(req.Project),
		Title:   req.Title,
		Preset:  req.Preset,
		Prompt:  req.Prompt,
	}
	if req.Status != "" {
		status, err := types.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		in.Status = status
	}
	sess, err := s.svc.Sessions.Create(r.Context(), in)
	if err != nil {
		fail(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// messageRequest is the JSON body for POST /api/sessions/{id}/messages.
type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	id := types.SessionID(r.PathValue("id"))
	sess, err := s.svc.Sessions.AppendMessages(r.Context(), id, types.Message{Role: req.Role, Content: req.Content})
	if err != nil {
		fail(w, "append message", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	status, err := types.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.svc.Sessions.SetStatus(r.Context(), types.SessionID(r.PathValue("id")), status)
	if err != nil {
		fail(w, "set status", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.Projects.List(r.Context())
	if err != nil {
		fail(w, "list projects", err)
		return
	}
	if projects == nil {
		projects = []*types.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// eventResponse is one entry of GET /api/events.
type eventResponse struct {
	Seq       int64          `json:"seq"`
	Partition string         `json:"partition"`
	Kind      string         `json:"kind"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, err := intParam(q.Get("after"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "after must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), defaultEventLimit)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	events, err := s.events.Scan(r.Context(), types.ScanOptions{After: after, Limit: int(limit)})
	if err != nil {
		fail(w, "scan events", err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		resp := eventResponse{Seq: e.Seq, Partition: e.Partition, Kind: e.Kind, CreatedAt: e.CreatedAt}
		if err := e.DecodePayload(&resp.Payload); err != nil {
			slog.Warn("undecodable event payload", "seq", e.Seq, "error", err)
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}

func intParam(v string, def int64) (int64, error) {
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fail maps service errors onto HTTP statuses.
func fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrStoreUnavailable):
		slog.Error(op+" failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		slog.Error(op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
